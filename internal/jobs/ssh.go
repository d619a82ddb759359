package jobs

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// dialSSH connects to the endpoint's host and opens a stream to the
// remote Unix socket over the SSH connection. The returned client must
// be closed after the stream.
func dialSSH(ctx context.Context, ep Endpoint) (net.Conn, *ssh.Client, error) {
	target := *ep.SSH
	config, closeAgent, err := buildSSHConfig(target.User)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh config: %w", err)
	}
	// Agent signers sign through the agent connection during the handshake.
	defer closeAgent()

	dialer := net.Dialer{Timeout: dialTimeout}
	tcp, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return nil, nil, fmt.Errorf("ssh dial %s: %w", target.Addr(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcp, target.Addr(), config)
	if err != nil {
		tcp.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", target, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	conn, err := client.Dial("unix", ep.Path)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("opening %s on %s: %w", ep.Path, target, err)
	}
	return conn, client, nil
}

// buildSSHConfig creates an SSH client config from the agent and the
// default key files, verifying hosts against known_hosts. The returned
// func closes the agent connection and must be called once the
// handshake is done.
func buildSSHConfig(user string) (*ssh.ClientConfig, func(), error) {
	var signers []ssh.Signer
	closeAgent := func() {}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentSigners, err := agent.NewClient(conn).Signers()
			if err == nil && len(agentSigners) > 0 {
				signers = append(signers, agentSigners...)
				closeAgent = func() { conn.Close() }
			} else {
				conn.Close()
			}
		}
	}

	home, _ := os.UserHomeDir()
	keyFiles := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
	for _, keyFile := range keyFiles {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		closeAgent()
		return nil, nil, fmt.Errorf("no SSH keys available (no agent and no key files found)")
	}

	// Hosts missing from known_hosts are refused.
	hostKeyCallback, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		closeAgent()
		return nil, nil, fmt.Errorf("loading known_hosts: %w", err)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}, closeAgent, nil
}
