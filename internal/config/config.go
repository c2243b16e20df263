// Package config loads and validates the worker's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath  = "worker_config.yaml"
	DefaultShell = "/bin/sh"

	EnvPreSharedKey = "DMON_WORKER_PK"
	EnvServerHost   = "DMON_SERVER_HOST"
)

// WorkerConfig is the validated configuration. Nothing mutates it after
// startup.
type WorkerConfig struct {
	WorkerID     string
	PreSharedKey string
	Schedule     string
	Shell        string
	Server       Server
	Modules      []Module
	SSH          *SSH
	Log          Log
}

type Server struct {
	Host string
	Port uint16
	TLS  bool
	// Timeout bounds a whole push cycle. Zero means no deadline.
	Timeout time.Duration
}

type Module struct {
	Name    string
	Command string
}

// SSH switches module execution to a remote host.
type SSH struct {
	Host        string
	Port        int
	User        string
	PasswordEnv string
	Timeout     time.Duration
	KnownHosts  string // OpenSSH known_hosts file; empty skips host key checks
}

type Log struct {
	Level  string
	Format string
}

type fileConfig struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		TLS     bool   `yaml:"tls"`
		Timeout string `yaml:"timeout"`
	} `yaml:"server"`
	Worker struct {
		ID       string    `yaml:"id"`
		PK       string    `yaml:"pk"`
		Schedule string    `yaml:"schedule"`
		Shell    string    `yaml:"shell"`
		Modules  yaml.Node `yaml:"modules"`
		SSH      *struct {
			Host        string `yaml:"host"`
			Port        int    `yaml:"port"`
			User        string `yaml:"user"`
			PasswordEnv string `yaml:"password_env"`
			Timeout     string `yaml:"timeout"`
			KnownHosts  string `yaml:"known_hosts"`
		} `yaml:"ssh"`
	} `yaml:"worker"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Load(path string) (*WorkerConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("read config: %w", err)}
	}
	return Parse(b)
}

// Parse validates raw YAML and decodes it into a WorkerConfig.
func Parse(b []byte) (*WorkerConfig, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &ConfigError{Err: ErrEmpty}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("yaml unmarshal: %w", err)}
	}
	if len(root.Content) == 0 {
		return nil, &ConfigError{Err: errors.New("invalid YAML configuration")}
	}
	if err := Validate(&root); err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := root.Decode(&fc); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("yaml decode: %w", err)}
	}

	if fc.Server.Port < 1 || fc.Server.Port > 65535 {
		return nil, &ConfigError{Field: "server.port", Err: fmt.Errorf("port %d out of range", fc.Server.Port)}
	}

	mods, err := parseModules(&fc.Worker.Modules)
	if err != nil {
		return nil, err
	}

	cfg := &WorkerConfig{
		WorkerID:     fc.Worker.ID,
		PreSharedKey: fc.Worker.PK,
		Schedule:     strings.TrimSpace(fc.Worker.Schedule),
		Shell:        fc.Worker.Shell,
		Server: Server{
			Host: strings.TrimSpace(fc.Server.Host),
			Port: uint16(fc.Server.Port),
			TLS:  fc.Server.TLS,
		},
		Modules: mods,
		Log: Log{
			Level:  fc.Log.Level,
			Format: fc.Log.Format,
		},
	}

	if cfg.Server.Timeout, err = parseDuration("server.timeout", fc.Server.Timeout); err != nil {
		return nil, err
	}

	if s := fc.Worker.SSH; s != nil {
		cfg.SSH = &SSH{
			Host:        strings.TrimSpace(s.Host),
			Port:        s.Port,
			User:        s.User,
			PasswordEnv: s.PasswordEnv,
			KnownHosts:  strings.TrimSpace(s.KnownHosts),
		}
		if cfg.SSH.Timeout, err = parseDuration("worker.ssh.timeout", s.Timeout); err != nil {
			return nil, err
		}
		if cfg.SSH.Host == "" {
			return nil, &ConfigError{Field: "worker.ssh.host", Err: ErrMissing}
		}
		if cfg.SSH.PasswordEnv == "" {
			return nil, &ConfigError{Field: "worker.ssh.password_env", Err: ErrMissing}
		}
	}

	normalize(cfg)
	return cfg, nil
}

// ApplyEnv lets secrets and the collector host come from the environment
// instead of the file.
func ApplyEnv(cfg *WorkerConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvPreSharedKey)); v != "" {
		cfg.PreSharedKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerHost)); v != "" {
		cfg.Server.Host = v
	}
}

func normalize(cfg *WorkerConfig) {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if s := cfg.SSH; s != nil {
		if s.Port <= 0 {
			s.Port = 22
		}
		if s.User == "" {
			s.User = "root"
		}
		if s.Timeout <= 0 {
			s.Timeout = 5 * time.Second
		}
	}
}

func parseDuration(field, v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, &ConfigError{Field: field, Expected: "duration"}
	}
	return d, nil
}
