package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "no-endpoints",
			mutate:    func(c *Config) { c.Endpoints = nil },
			expectErr: true,
		},
		{
			name:      "blank-endpoint",
			mutate:    func(c *Config) { c.Endpoints = []string{"127.0.0.1:2379", " "} },
			expectErr: true,
		},
		{
			name:      "short-ttl",
			mutate:    func(c *Config) { c.LeaseTTL = 100 * time.Millisecond },
			expectErr: true,
		},
		{
			name:      "tls-without-files",
			mutate:    func(c *Config) { c.UseTLS = true },
			expectErr: true,
		},
		{
			name:      "negative-page-size",
			mutate:    func(c *Config) { c.ListPageSize = -1 },
			expectErr: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			c := NewConfig()
			c.Endpoints = []string{"127.0.0.1:2379"}
			testCase.mutate(c)
			err := c.Validate()
			if testCase.expectErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !testCase.expectErr && err != nil {
				t.Fatalf("unexpected validation err:%v", err)
			}
		})
	}
}

func TestValidateListener(t *testing.T) {
	c := NewConfig()
	if err := c.ValidateListener(); err != nil {
		t.Fatalf("default listen address should be valid, err:%v", err)
	}

	c.ListenAddress = "127.0.0.1:2379"
	if err := c.ValidateListener(); err == nil {
		t.Fatalf("expected error for listen address without network")
	}

	c.ListenAddress = "udp://127.0.0.1:2379"
	if err := c.ValidateListener(); err == nil {
		t.Fatalf("expected error for unsupported network")
	}
}

func TestLoadFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "etcdsession-config")
	if err != nil {
		t.Fatalf("failed to create temp dir with err:%v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	content := `
endpoints:
- 10.0.0.1:2379
- 10.0.0.2:2379
list-page-size: 50
use-tls: false
`
	if err := ioutil.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file with err:%v", err)
	}

	c := NewConfig()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("failed to load config with err:%v", err)
	}

	if len(c.Endpoints) != 2 || c.Endpoints[1] != "10.0.0.2:2379" {
		t.Fatalf("unexpected endpoints %+v", c.Endpoints)
	}
	if c.ListPageSize != 50 {
		t.Fatalf("expected page size 50 got %v", c.ListPageSize)
	}
	// untouched defaults survive
	if c.LeaseTTL != DefaultLeaseTTL {
		t.Fatalf("expected default lease ttl got %v", c.LeaseTTL)
	}

	if err := c.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error loading missing file")
	}
}

func TestLeaseTTLSeconds(t *testing.T) {
	testCases := []struct {
		ttl      time.Duration
		expected int64
	}{
		{ttl: 5 * time.Second, expected: 5},
		{ttl: 1500 * time.Millisecond, expected: 2},
		{ttl: time.Second + time.Nanosecond, expected: 2},
		{ttl: time.Second, expected: 1},
	}

	for _, tc := range testCases {
		c := NewConfig()
		c.LeaseTTL = tc.ttl
		if got := c.LeaseTTLSeconds(); got != tc.expected {
			t.Fatalf("ttl %v: expected %v seconds got %v", tc.ttl, tc.expected, got)
		}
	}
}
