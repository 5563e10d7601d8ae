// Package config loads filterctl settings from TOML files. Keys left out
// of a file keep their defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgefilter/internal/client"
	"github.com/danmuck/edgefilter/internal/filter"
	"github.com/danmuck/edgefilter/internal/protocol"
)

// Config is the resolved configuration of one filterctl process.
type Config struct {
	Client        client.Config
	MetricsAddr   string
	DrainInterval time.Duration
	LogLevel      string
	Notifications []string
	Kinds         []protocol.Kind
}

func Default() Config {
	return Config{
		Client:        client.DefaultConfig(),
		MetricsAddr:   "127.0.0.1:9464",
		DrainInterval: 10 * time.Second,
		LogLevel:      "info",
		Notifications: []string{},
		Kinds:         []protocol.Kind{},
	}
}

type fileConfig struct {
	Address            string   `toml:"address"`
	SecurityMode       string   `toml:"security_mode"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	HandshakeTimeout   string   `toml:"handshake_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	RequestTimeout     string   `toml:"request_timeout"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	MetricsAddr        string   `toml:"metrics_addr"`
	DrainInterval      string   `toml:"drain_interval"`
	LogLevel           string   `toml:"log_level"`
	Notifications      []string `toml:"notifications"`
	Kinds              []string `toml:"kinds"`

	TLS     tlsSection     `toml:"tls"`
	Backoff backoffSection `toml:"backoff"`
	Filter  filterSection  `toml:"filter"`
	Limits  limitsSection  `toml:"limits"`
}

type tlsSection struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type backoffSection struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type filterSection struct {
	Name              string `toml:"name"`
	UnmatchedCapacity int    `toml:"unmatched_capacity"`
	StreamCapacity    int    `toml:"stream_capacity"`
	BroadcastCapacity int    `toml:"broadcast_capacity"`
	Stripes           int    `toml:"stripes"`
}

type limitsSection struct {
	MaxMethodBytes  uint64 `toml:"max_method_bytes"`
	MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
}

// Load reads path and applies every key it defines over Default.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	return apply(raw, meta)
}

func apply(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Default()
	c := &cfg.Client

	if meta.IsDefined("address") {
		c.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("security_mode") {
		c.SecurityMode = client.NormalizeSecurityMode(client.SecurityMode(raw.SecurityMode))
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &c.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &c.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &c.WriteTimeout},
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
		{"drain_interval", raw.DrainInterval, &cfg.DrainInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := parseDuration(d.key, d.raw)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}
	if meta.IsDefined("max_connect_attempts") {
		c.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("notifications") {
		cfg.Notifications = normalizeNames(raw.Notifications)
	}
	if meta.IsDefined("kinds") {
		kinds, err := parseKinds(raw.Kinds)
		if err != nil {
			return Config{}, err
		}
		cfg.Kinds = kinds
	}

	applyTLS(&c.TLS, raw.TLS, meta)
	if err := applyBackoff(&c.Backoff, raw.Backoff, meta); err != nil {
		return Config{}, err
	}
	applyFilter(&c.Filter, raw.Filter, meta)
	if meta.IsDefined("limits", "max_method_bytes") {
		c.Limits.MaxMethodBytes = raw.Limits.MaxMethodBytes
	}
	if meta.IsDefined("limits", "max_payload_bytes") {
		c.Limits.MaxPayloadBytes = raw.Limits.MaxPayloadBytes
	}
	return cfg, nil
}

func applyTLS(dst *client.TLSConfig, raw tlsSection, meta toml.MetaData) {
	if meta.IsDefined("tls", "enabled") {
		dst.Enabled = raw.Enabled
	}
	if meta.IsDefined("tls", "mutual") {
		dst.Mutual = raw.Mutual
	}
	if meta.IsDefined("tls", "ca_file") {
		dst.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("tls", "cert_file") {
		dst.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined("tls", "key_file") {
		dst.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("tls", "server_name") {
		dst.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		dst.InsecureSkipVerify = raw.InsecureSkipVerify
	}
}

func applyBackoff(dst *client.BackoffConfig, raw backoffSection, meta toml.MetaData) error {
	if meta.IsDefined("backoff", "initial_delay") {
		d, err := parseDuration("backoff.initial_delay", raw.InitialDelay)
		if err != nil {
			return err
		}
		dst.InitialDelay = d
	}
	if meta.IsDefined("backoff", "max_delay") {
		d, err := parseDuration("backoff.max_delay", raw.MaxDelay)
		if err != nil {
			return err
		}
		dst.MaxDelay = d
	}
	if meta.IsDefined("backoff", "multiplier") {
		dst.Multiplier = raw.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		dst.Jitter = raw.Jitter
	}
	return nil
}

func applyFilter(f *filter.Config, raw filterSection, meta toml.MetaData) {
	if meta.IsDefined("filter", "name") {
		f.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("filter", "unmatched_capacity") {
		f.UnmatchedCapacity = raw.UnmatchedCapacity
	}
	if meta.IsDefined("filter", "stream_capacity") {
		f.StreamCapacity = raw.StreamCapacity
	}
	if meta.IsDefined("filter", "broadcast_capacity") {
		f.BroadcastCapacity = raw.BroadcastCapacity
	}
	if meta.IsDefined("filter", "stripes") {
		f.Stripes = raw.Stripes
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// parseKinds accepts message type names or ids. Service-method kinds are
// subscribed by job name through notifications instead.
func parseKinds(in []string) ([]protocol.Kind, error) {
	out := make([]protocol.Kind, 0, len(in))
	for _, name := range normalizeNames(in) {
		t, err := protocol.ParseMessageType(name)
		if err != nil {
			return nil, fmt.Errorf("parse kinds: %w", err)
		}
		if t == protocol.MsgServiceMethod {
			return nil, fmt.Errorf("parse kinds: %s must be subscribed through notifications", t)
		}
		out = append(out, protocol.KindOf(t))
	}
	return out, nil
}

func normalizeNames(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
