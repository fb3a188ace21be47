package config

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghodss/yaml"
)

const (
	DefaultLeaseTTL       = 5 * time.Second
	DefaultDialTimeout    = 2 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultListenAddress  = "tcp://127.0.0.1:2379"
)

type TLSConfig struct {
	CertFilePath  string `json:"cert-file"`
	KeyFilePath   string `json:"key-file"`
	TrustedCAFile string `json:"trusted-ca-file"`
}

type Runtime struct {
	Done    chan struct{}
	Stop    chan os.Signal
	Context context.Context
}

type Config struct {
	// candidate endpoints, tried in order on connect
	Endpoints      []string      `json:"endpoints"`
	DialTimeout    time.Duration `json:"dial-timeout"`
	RequestTimeout time.Duration `json:"request-timeout"`
	// ttl requested on lease grant. server may grant something else.
	LeaseTTL time.Duration `json:"lease-ttl"`
	// 0 means List asks for everything in one go
	ListPageSize int64 `json:"list-page-size"`

	UseTLS    bool      `json:"use-tls"`
	TLSConfig TLSConfig `json:"tls"`

	// used by serve command
	ListenAddress  string `json:"listen-address"`
	MetricsAddress string `json:"metrics-address"`

	Runtime Runtime `json:"-"`
}

func NewConfig() *Config {
	return &Config{
		DialTimeout:    DefaultDialTimeout,
		RequestTimeout: DefaultRequestTimeout,
		LeaseTTL:       DefaultLeaseTTL,
		ListenAddress:  DefaultListenAddress,
	}
}

// LoadFile merges a yaml config file into c. Values already set
// in the file win over whatever c carries.
func (c *Config) LoadFile(path string) error {
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(bs, c); err != nil {
		return fmt.Errorf("failed to parse config file %s with err:%v", path, err)
	}
	return nil
}

// LeaseTTLSeconds is LeaseTTL in whole seconds, rounded up.
func (c *Config) LeaseTTLSeconds() int64 {
	seconds := int64(c.LeaseTTL / time.Second)
	if c.LeaseTTL%time.Second != 0 {
		seconds = seconds + 1
	}
	return seconds
}

func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	for _, ep := range c.Endpoints {
		if len(strings.TrimSpace(ep)) == 0 {
			return fmt.Errorf("empty endpoint in endpoint list")
		}
	}

	if c.LeaseTTL < time.Second {
		return fmt.Errorf("lease ttl must be at least 1s got %v", c.LeaseTTL)
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be > 0")
	}

	if c.ListPageSize < 0 {
		return fmt.Errorf("list page size can not be negative")
	}

	if c.UseTLS {
		if len(c.TLSConfig.CertFilePath) == 0 {
			return fmt.Errorf("cert file path is required when TLS is set to true")
		}

		if len(c.TLSConfig.KeyFilePath) == 0 {
			return fmt.Errorf("key file path is required when TLS is set to true")
		}

		if len(c.TLSConfig.TrustedCAFile) == 0 {
			return fmt.Errorf("trusted CA file is required when TLS is set to true")
		}
	}
	return nil
}

// ValidateListener validates what the serve command needs. Endpoints
// are not required for that.
func (c *Config) ValidateListener() error {
	parts := strings.Split(c.ListenAddress, "://")
	if len(parts) != 2 || len(parts[1]) == 0 {
		return fmt.Errorf("listen address %q must be in the form tcp://host:port or unix://path", c.ListenAddress)
	}
	if parts[0] != "tcp" && parts[0] != "unix" {
		return fmt.Errorf("listen address network %q is not supported", parts[0])
	}
	return nil
}

func (c *Config) loadTLS() (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(c.TLSConfig.CertFilePath, c.TLSConfig.KeyFilePath)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	certPool := x509.NewCertPool()
	bs, err := ioutil.ReadFile(c.TLSConfig.TrustedCAFile)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	if ok := certPool.AppendCertsFromPEM(bs); !ok {
		return tls.Certificate{}, nil, fmt.Errorf("failed to append certs from %s", c.TLSConfig.TrustedCAFile)
	}
	return cert, certPool, nil
}

// ClientTLS builds the tls config used to dial endpoints. nil when TLS is off.
func (c *Config) ClientTLS() (*tls.Config, error) {
	if !c.UseTLS {
		return nil, nil
	}
	cert, pool, err := c.loadTLS()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}

// ServerTLS builds the tls config for the serve command (mutual TLS).
func (c *Config) ServerTLS() (*tls.Config, error) {
	if !c.UseTLS {
		return nil, nil
	}
	cert, pool, err := c.loadTLS()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
	}, nil
}

func (c *Config) InitRuntime() error {
	// wire up runtime stop and context
	c.Runtime.Stop = make(chan os.Signal, 1)
	c.Runtime.Done = make(chan struct{})
	var cancel func()
	c.Runtime.Context, cancel = context.WithCancel(context.Background())

	signal.Notify(c.Runtime.Stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-c.Runtime.Stop
		cancel()
	}()
	return nil
}
