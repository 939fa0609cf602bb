package docker

import (
	"context"
	"os"
	"time"

	"github.com/docker/docker/client"
)

// LabelManaged marks containers started by dockersmoke so leftovers of
// killed runs can be found and pruned.
const LabelManaged = "io.dockersmoke.managed"

// Config holds Docker client configuration
type Config struct {
	Host      string
	TLSVerify bool
	CertPath  string
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:    client.DefaultDockerHost,
		Timeout: 30 * time.Second,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by DOCKER_HOST,
// DOCKER_TLS_VERIFY and DOCKER_CERT_PATH.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		cfg.Host = host
	}
	if os.Getenv("DOCKER_TLS_VERIFY") != "" {
		cfg.TLSVerify = true
		cfg.CertPath = os.Getenv("DOCKER_CERT_PATH")
	}
	return cfg
}

// Client wraps the Docker API client
type Client struct {
	cli *client.Client
}

// NewClient creates a Docker client and checks that the daemon answers
func NewClient(cfg Config) (*Client, error) {
	opts := []client.Opt{
		client.WithHost(cfg.Host),
		client.WithAPIVersionNegotiation(),
	}

	if cfg.TLSVerify {
		opts = append(opts, client.WithTLSClientConfig(
			cfg.CertPath+"/ca.pem",
			cfg.CertPath+"/cert.pem",
			cfg.CertPath+"/key.pem",
		))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	_, err = cli.Ping(ctx)
	if err != nil {
		cli.Close()
		return nil, err
	}

	return &Client{cli: cli}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}
