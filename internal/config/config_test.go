package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgefilter/internal/client"
	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filterctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
address = "tls://127.0.0.1:9443"
security_mode = "Production"
request_timeout = "3s"
max_connect_attempts = 4
notifications = ["Chat.Incoming", " ", "Presence.Update"]
kinds = ["Heartbeat", "12"]

[tls]
enabled = true
mutual = true
ca_file = "ca.crt"
cert_file = "client.crt"
key_file = "client.key"

[backoff]
initial_delay = "100ms"
jitter = false

[filter]
name = "edge"
unmatched_capacity = 64
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	d := Default()
	c := cfg.Client
	assert.Equal(t, "tls://127.0.0.1:9443", c.Address)
	assert.Equal(t, client.SecurityModeProduction, c.SecurityMode)
	assert.Equal(t, 3*time.Second, c.RequestTimeout)
	assert.Equal(t, d.Client.ConnectTimeout, c.ConnectTimeout)
	assert.Equal(t, 4, c.MaxConnectAttempts)
	assert.Equal(t, client.TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt", CertFile: "client.crt", KeyFile: "client.key"}, c.TLS)
	assert.Equal(t, 100*time.Millisecond, c.Backoff.InitialDelay)
	assert.False(t, c.Backoff.Jitter)
	assert.Equal(t, d.Client.Backoff.MaxDelay, c.Backoff.MaxDelay)
	assert.Equal(t, "edge", c.Filter.Name)
	assert.Equal(t, 64, c.Filter.UnmatchedCapacity)
	assert.Equal(t, d.Client.Filter.StreamCapacity, c.Filter.StreamCapacity)
	assert.Equal(t, []string{"Chat.Incoming", "Presence.Update"}, cfg.Notifications)
	assert.Equal(t, []protocol.Kind{protocol.KindOf(protocol.MsgHeartbeat), protocol.KindOf(protocol.MsgStreamChunk)}, cfg.Kinds)
	assert.Equal(t, d.MetricsAddr, cfg.MetricsAddr)
	assert.NoError(t, c.Validate())
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"duration":      `write_timeout = "soon"`,
		"backoff":       "[backoff]\nmax_delay = \"x\"",
		"kind":          `kinds = ["Nope"]`,
		"service kind":  `kinds = ["ServiceMethod"]`,
		"unknown key":   `adress = "typo"`,
		"syntax":        `address = `,
		"unknown table": "[filters]\nname = \"x\"",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "load config"))
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Client.Address = "tls://127.0.0.1:1"
	cfg.Client.TLS.Enabled = true
	cfg.Client.Limits.MaxMethodBytes = 1 << 20
	cfg.DrainInterval = 0
	cfg.MetricsAddr = "nope"
	cfg.LogLevel = "loud"
	cfg.Notifications = []string{"a", "a"}
	cfg.Kinds = []protocol.Kind{protocol.KindOf(protocol.MsgHeartbeat), protocol.KindOf(protocol.MsgHeartbeat)}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []error{
		client.ErrTLSCAFileRequired,
		ErrMethodLimit,
		ErrDrainInterval,
		ErrInvalidMetricAddr,
		ErrUnknownLogLevel,
		ErrDuplicateName,
		ErrDuplicateKind,
	} {
		assert.ErrorIs(t, err, want)
	}
}

func TestValidateDefaults(t *testing.T) {
	testlog.Start(t)
	assert.NoError(t, Default().Validate())
}
