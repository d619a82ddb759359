package jobs

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultSocket is the job service socket on the cluster master.
const DefaultSocket = "/var/run/ganeti/socket/ganeti-master"

// SSHTarget is the remote host a socket is reached through.
type SSHTarget struct {
	User string
	Host string
	Port string
}

// Addr returns the host:port for dialing.
func (t SSHTarget) Addr() string {
	return net.JoinHostPort(t.Host, t.Port)
}

func (t SSHTarget) String() string {
	if t.Port == "22" {
		return t.User + "@" + t.Host
	}
	return fmt.Sprintf("%s@%s:%s", t.User, t.Host, t.Port)
}

// Endpoint is a parsed job service address.
type Endpoint struct {
	// Path is the Unix socket path, local or on the SSH host.
	Path string
	// SSH is set when the socket lives on a remote host.
	SSH *SSHTarget
}

func (e Endpoint) String() string {
	if e.SSH == nil {
		return e.Path
	}
	return "ssh://" + e.SSH.String() + e.Path
}

// ParseEndpoint parses a socket path or an
// ssh://user@host[:port]/socket/path address.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty job service endpoint")
	}

	if !strings.Contains(s, "://") {
		return Endpoint{Path: s}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid job service endpoint %q: %w", s, err)
	}
	switch u.Scheme {
	case "unix":
		if u.Path == "" {
			return Endpoint{}, fmt.Errorf("invalid job service endpoint %q: missing socket path", s)
		}
		return Endpoint{Path: u.Path}, nil
	case "ssh":
	default:
		return Endpoint{}, fmt.Errorf("invalid job service endpoint %q: unsupported scheme %q", s, u.Scheme)
	}

	if u.User == nil || u.User.Username() == "" || u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("invalid job service endpoint %q (expected ssh://user@host[:port]/socket/path)", s)
	}
	path := u.Path
	if path == "" || path == "/" {
		path = DefaultSocket
	}
	port := u.Port()
	if port == "" {
		port = "22"
	}

	return Endpoint{
		Path: path,
		SSH:  &SSHTarget{User: u.User.Username(), Host: u.Hostname(), Port: port},
	}, nil
}
