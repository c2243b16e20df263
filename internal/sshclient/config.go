package sshclient

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tastythames/dmon-worker/internal/config"
)

type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	Timeout    time.Duration
	KnownHosts string // empty disables host key verification
}

// LoadConfig resolves the password from the environment variable named in
// the worker configuration.
func LoadConfig(c *config.SSH) (Config, error) {
	password := os.Getenv(c.PasswordEnv)
	if password == "" {
		return Config{}, fmt.Errorf("empty env var: %s", c.PasswordEnv)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	port := c.Port
	if port <= 0 {
		port = 22
	}

	return Config{
		Host:       strings.TrimSpace(c.Host),
		Port:       port,
		User:       c.User,
		Password:   password,
		Timeout:    timeout,
		KnownHosts: c.KnownHosts,
	}, nil
}
