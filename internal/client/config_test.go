package client

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/edgefilter/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterWithoutRNGHalves(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 2, Jitter: true}
	if got := NextBackoffDelay(cfg, 2, nil); got != time.Second {
		t.Fatalf("got=%v", got)
	}
}

func TestValidateSecurityPolicy(t *testing.T) {
	testlog.Start(t)
	base := DefaultConfig()
	base.Address = "127.0.0.1:9000"

	cases := []struct {
		name string
		edit func(*Config)
		want error
	}{
		{"development plain", func(*Config) {}, nil},
		{"bad mode", func(c *Config) { c.SecurityMode = "lax" }, ErrInvalidSecurityMode},
		{"production needs tls", func(c *Config) { c.SecurityMode = SecurityModeProduction }, ErrTLSRequired},
		{"production needs mtls", func(c *Config) {
			c.SecurityMode = SecurityModeProduction
			c.TLS = TLSConfig{Enabled: true, CAFile: "ca.crt"}
		}, ErrMTLSRequired},
		{"production refuses skip verify", func(c *Config) {
			c.SecurityMode = SecurityModeProduction
			c.TLS = TLSConfig{Enabled: true, Mutual: true, InsecureSkipVerify: true}
		}, ErrTLSInsecureSkipNotAllow},
		{"mutual without tls", func(c *Config) { c.TLS.Mutual = true }, ErrTLSRequired},
		{"tls without ca", func(c *Config) { c.TLS.Enabled = true }, ErrTLSCAFileRequired},
		{"mutual without cert", func(c *Config) {
			c.TLS = TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt"}
		}, ErrTLSCertFileRequired},
		{"mutual without key", func(c *Config) {
			c.TLS = TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt", CertFile: "c.crt"}
		}, ErrTLSKeyFileRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.edit(&cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Address: " 10.0.0.1:1 ", WriteTimeout: time.Second}.WithDefaults()
	if cfg.Address != "10.0.0.1:1" {
		t.Fatalf("address not trimmed: %q", cfg.Address)
	}
	if cfg.WriteTimeout != time.Second {
		t.Fatalf("write timeout overwritten: %v", cfg.WriteTimeout)
	}
	if cfg.ConnectTimeout != DefaultConfig().ConnectTimeout {
		t.Fatalf("connect timeout not defaulted: %v", cfg.ConnectTimeout)
	}
	if cfg.Filter.UnmatchedCapacity == 0 || cfg.Limits.MaxPayloadBytes == 0 {
		t.Fatalf("nested defaults missing: %+v", cfg)
	}
	if cfg.RequestTimeout != 0 {
		t.Fatalf("request timeout should stay unlimited: %v", cfg.RequestTimeout)
	}
}

func TestParseEndpoint(t *testing.T) {
	testlog.Start(t)
	cases := map[string]endpoint{
		"127.0.0.1:9000":        {scheme: schemeTCP, host: "127.0.0.1:9000"},
		"tcp://127.0.0.1:9000":  {scheme: schemeTCP, host: "127.0.0.1:9000"},
		"TLS://example.com:443": {scheme: schemeTLS, host: "example.com:443"},
		"ws://localhost:80/rpc": {scheme: schemeWS, host: "ws://localhost:80/rpc"},
	}
	for in, want := range cases {
		got, err := parseEndpoint(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %+v want %+v", in, got, want)
		}
	}
}
