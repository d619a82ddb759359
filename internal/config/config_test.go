package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10.0, cfg.JobDelay)
	assert.Equal(t, "automated repair", cfg.Reason)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.WaitTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.False(t, cfg.DryRun)

	// Endpoint has no default.
	require.Error(t, cfg.Validate())
	cfg.Endpoint = "/var/run/ganeti/socket/ganeti-master"
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
endpoint: ssh://root@master.example.com/var/run/ganeti/socket/ganeti-master
job_delay: 0
reason: nightly sweep
dry_run: true
log_level: debug
timeout: 30s
wait_timeout: 5m
audit:
  path: /tmp/audit.log
kubernetes:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ssh://root@master.example.com/var/run/ganeti/socket/ganeti-master", cfg.Endpoint)
	assert.Equal(t, 0.0, cfg.JobDelay)
	assert.Equal(t, "nightly sweep", cfg.Reason)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.WaitTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval, "unset keys keep defaults")
	assert.Equal(t, "/tmp/audit.log", cfg.Audit.Path)
	assert.True(t, cfg.Kubernetes.Enabled)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
endpoint = "/run/ganeti-master"
job_delay = 2.5
poll_interval = "250ms"

[audit]
path = "/var/log/tb-repair/audit.log"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/run/ganeti-master", cfg.Endpoint)
	assert.Equal(t, 2.5, cfg.JobDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "automated repair", cfg.Reason)
	assert.Equal(t, "/var/log/tb-repair/audit.log", cfg.Audit.Path)
}

func TestIntegerDurationsAreRejected(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.toml", "endpoint = \"/tmp/s\"\ntimeout = 60\n"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Nanosecond, cfg.Timeout)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	cfg, err = Load(writeFile(t, "config.toml", "endpoint = \"/tmp/s\"\npoll_interval = 5\nwait_timeout = 600\n"))
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
	assert.Contains(t, err.Error(), "wait_timeout")

	_, err = Load(writeFile(t, "config.yaml", "endpoint: /tmp/s\ntimeout: 60\n"))
	require.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")

	_, err = Load(writeFile(t, "bad.yaml", "endpoint: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")

	_, err = Load(writeFile(t, "bad.toml", "endpoint = "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"TB_REPAIR_ENDPOINT":  "/tmp/master.sock",
		"TB_REPAIR_JOB_DELAY": "0",
		"TB_REPAIR_REASON":    "env reason",
		"TB_REPAIR_DRY_RUN":   "true",
		"TB_REPAIR_LOG_LEVEL": "WARN",
		"TB_REPAIR_AUDIT_LOG": "/tmp/a.log",
		"KUBECONFIG":          "/home/op/.kube/config",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/master.sock", cfg.Endpoint)
	assert.Equal(t, 0.0, cfg.JobDelay)
	assert.Equal(t, "env reason", cfg.Reason)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/tmp/a.log", cfg.Audit.Path)
	assert.Equal(t, "/home/op/.kube/config", cfg.Kubernetes.Kubeconfig)
	assert.False(t, cfg.Kubernetes.Enabled)
}

func TestApplyEnvKeepsConfiguredKubeconfig(t *testing.T) {
	cfg := Default()
	cfg.Kubernetes.Kubeconfig = "/etc/tb-repair/kubeconfig"
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{"KUBECONFIG": "/elsewhere"})))
	assert.Equal(t, "/etc/tb-repair/kubeconfig", cfg.Kubernetes.Kubeconfig)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	err := Default().ApplyEnv(env(map[string]string{"TB_REPAIR_JOB_DELAY": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TB_REPAIR_JOB_DELAY")

	err = Default().ApplyEnv(env(map[string]string{"TB_REPAIR_DRY_RUN": "maybe"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TB_REPAIR_DRY_RUN")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "ssh endpoint", mutate: func(c *Config) { c.Endpoint = "ssh://root@master:2222/run/sock" }},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: "endpoint is required"},
		{name: "bad endpoint", mutate: func(c *Config) { c.Endpoint = "http://master/sock" }, wantErr: "endpoint"},
		{name: "ssh without user", mutate: func(c *Config) { c.Endpoint = "ssh://master/sock" }, wantErr: "endpoint"},
		{name: "negative delay", mutate: func(c *Config) { c.JobDelay = -1 }, wantErr: "job_delay"},
		{name: "empty reason", mutate: func(c *Config) { c.Reason = "" }, wantErr: "reason is required"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "log_level must be one of"},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: "timeout"},
		{name: "zero poll", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: "poll_interval"},
		{name: "sub-second timeout", mutate: func(c *Config) { c.Timeout = 500 * time.Millisecond }, wantErr: "timeout"},
		{name: "sub-second wait", mutate: func(c *Config) { c.WaitTimeout = time.Millisecond }, wantErr: "wait_timeout"},
		{name: "minimum durations", mutate: func(c *Config) {
			c.Timeout, c.WaitTimeout, c.PollInterval = time.Second, time.Second, 10*time.Millisecond
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Endpoint = "/var/run/ganeti/socket/ganeti-master"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	require.Error(t, cfg.Validate())
}
