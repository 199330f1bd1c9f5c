// Package config provides configuration parsing and validation for the
// tunnel agent, in both server and client modes.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level agent configuration, covering both the server
// (serve) and client (connect) modes; a single file may supply either or
// both sections.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	TLS        TLSConfig        `yaml:"tls"`
	Server     ServerConfig     `yaml:"server"`
	Client     ClientConfig     `yaml:"client"`
	Session    SessionConfig    `yaml:"session"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// AgentConfig holds process-wide settings shared by server and client modes.
type AgentConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TLSConfig describes the certificate material used to secure the
// transport. Server mode requires Cert/Key; client mode verifies the server
// against CA when it is set (the system roots otherwise), unless
// InsecureSkipVerify is set for local testing.
type TLSConfig struct {
	CA      string `yaml:"ca"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
	CertPEM string `yaml:"cert_pem"`
	KeyPEM  string `yaml:"key_pem"`
	CAPEM   string `yaml:"ca_pem"`

	// RequireClientCert enables mutual TLS on the server listener.
	RequireClientCert  bool `yaml:"require_client_cert"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// GetCertPEM returns the certificate PEM content, reading from file if
// the inline form was not supplied.
func (t *TLSConfig) GetCertPEM() ([]byte, error) {
	if t.CertPEM != "" {
		return []byte(t.CertPEM), nil
	}
	if t.Cert != "" {
		return os.ReadFile(t.Cert)
	}
	return nil, nil
}

// GetKeyPEM returns the private key PEM content, reading from file if the
// inline form was not supplied.
func (t *TLSConfig) GetKeyPEM() ([]byte, error) {
	if t.KeyPEM != "" {
		return []byte(t.KeyPEM), nil
	}
	if t.Key != "" {
		return os.ReadFile(t.Key)
	}
	return nil, nil
}

// GetCAPEM returns the CA certificate PEM content, reading from file if
// the inline form was not supplied.
func (t *TLSConfig) GetCAPEM() ([]byte, error) {
	if t.CAPEM != "" {
		return []byte(t.CAPEM), nil
	}
	if t.CA != "" {
		return os.ReadFile(t.CA)
	}
	return nil, nil
}

// HasCert reports whether a certificate is configured.
func (t *TLSConfig) HasCert() bool { return t.Cert != "" || t.CertPEM != "" }

// HasKey reports whether a private key is configured.
func (t *TLSConfig) HasKey() bool { return t.Key != "" || t.KeyPEM != "" }

// HasCA reports whether a CA certificate is configured.
func (t *TLSConfig) HasCA() bool { return t.CA != "" || t.CAPEM != "" }

// ServerConfig configures the listening side of the tunnel.
type ServerConfig struct {
	Address          string `yaml:"address"`
	CredentialFile   string `yaml:"credential_file"`
	MaxConcurrent    int    `yaml:"max_concurrent"`
	QueueDepth       int    `yaml:"queue_depth"`
}

// ClientConfig configures the dialing side of the tunnel.
type ClientConfig struct {
	ServerAddress string `yaml:"server_address"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SessionID     string `yaml:"session_id"`
}

// SessionConfig controls handshake, auth, and liveness timing.
type SessionConfig struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	AuthTimeout        time.Duration `yaml:"auth_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	MaxDecryptFailures int           `yaml:"max_decrypt_failures"`
}

// RateLimitConfig bounds the rate of AUTH attempts accepted across all
// connections to one listener, independent of the credential verifier
// itself.
type RateLimitConfig struct {
	AuthAttemptsPerSecond float64 `yaml:"auth_attempts_per_second"`
	AuthBurst             int     `yaml:"auth_burst"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Address:       "0.0.0.0:44350",
			MaxConcurrent: 16,
			QueueDepth:    64,
		},
		Session: SessionConfig{
			HandshakeTimeout:   5 * time.Second,
			AuthTimeout:        10 * time.Second,
			HeartbeatInterval:  30 * time.Second,
			MaxDecryptFailures: 3,
		},
		RateLimit: RateLimitConfig{
			AuthAttemptsPerSecond: 5,
			AuthBurst:             10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment
// variable references and validating the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR}, ${VAR:-default}, or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Agent.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid agent.log_level: %s", c.Agent.LogLevel))
	}
	if !isValidLogFormat(c.Agent.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid agent.log_format: %s", c.Agent.LogFormat))
	}

	if c.Server.MaxConcurrent <= 0 {
		errs = append(errs, "server.max_concurrent must be positive")
	}
	if c.Server.QueueDepth <= 0 {
		errs = append(errs, "server.queue_depth must be positive")
	}

	if c.Session.MaxDecryptFailures <= 0 {
		errs = append(errs, "session.max_decrypt_failures must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	}
	return false
}

// redactedValue is the placeholder for sensitive values in String().
const redactedValue = "[REDACTED]"

// Redacted returns a copy of the config with secrets replaced, safe to
// log or display.
func (c *Config) Redacted() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		return c
	}
	redacted := &Config{}
	if err := yaml.Unmarshal(data, redacted); err != nil {
		return c
	}
	if redacted.TLS.Key != "" {
		redacted.TLS.Key = redactedValue
	}
	if redacted.TLS.KeyPEM != "" {
		redacted.TLS.KeyPEM = redactedValue
	}
	if redacted.Client.Password != "" {
		redacted.Client.Password = redactedValue
	}
	return redacted
}

// String returns a redacted YAML representation, safe to log.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}
