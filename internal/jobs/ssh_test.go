package jobs

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh/agent"
)

// fakeHome points HOME at a directory with an empty known_hosts and no
// key files.
func fakeHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "known_hosts"), nil, 0o600))
	t.Setenv("HOME", home)
}

func TestBuildSSHConfigClosesAgentConnection(t *testing.T) {
	fakeHome(t)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keyring := agent.NewKeyring()
	require.NoError(t, keyring.Add(agent.AddedKey{PrivateKey: priv}))

	dir, err := os.MkdirTemp("", "agt")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "agent.sock")
	listener, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	t.Setenv("SSH_AUTH_SOCK", sock)

	served := make(chan struct{})
	go func() {
		defer close(served)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = agent.ServeAgent(keyring, conn)
	}()

	config, closeAgent, err := buildSSHConfig("root")
	require.NoError(t, err)
	assert.Equal(t, "root", config.User)
	assert.Len(t, config.Auth, 1)

	select {
	case <-served:
		t.Fatal("agent connection closed before the handshake")
	case <-time.After(50 * time.Millisecond):
	}

	closeAgent()
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("agent connection still open after close")
	}
}

func TestBuildSSHConfigWithoutKeys(t *testing.T) {
	fakeHome(t)
	t.Setenv("SSH_AUTH_SOCK", "")

	_, _, err := buildSSHConfig("root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no SSH keys available")
}
