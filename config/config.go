// Package config loads the YAML file describing which MCP servers to call,
// how to authenticate to them and where processed media goes.
package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/localrivet/mcpcontent/auth"
	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/protocol"
)

const (
	DefaultConfigFile     = "mcp-call.yaml"
	DefaultLogLevel       = "info"
	DefaultOutputDir      = "mcp-output"
	DefaultRequestTimeout = "5m"
)

// Auth types accepted in ServerConfig.Auth.Type.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthSigned = "signed"
)

// Config is the root of the configuration file.
type Config struct {
	LogLevel      string         `yaml:"log_level,omitempty"`
	DefaultServer string         `yaml:"default_server,omitempty"`
	Servers       []ServerConfig `yaml:"servers"`
	Pipeline      PipelineConfig `yaml:"pipeline,omitempty"`
	Identity      IdentityConfig `yaml:"identity,omitempty"`
}

// ServerConfig describes one MCP server. Exactly one of URL and Command is set.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url,omitempty"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     []string          `yaml:"env,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout string            `yaml:"timeout,omitempty"`
	Auth    AuthConfig        `yaml:"auth,omitempty"`
}

// AuthConfig selects the credentials sent when connecting.
type AuthConfig struct {
	Type     string `yaml:"type,omitempty"`
	Token    string `yaml:"token,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	Subject  string `yaml:"subject,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`
	TTL      string `yaml:"ttl,omitempty"`
}

// PipelineConfig controls how tool results are post-processed.
type PipelineConfig struct {
	FilePrefix    string `yaml:"file_prefix,omitempty"`
	OutputDir     string `yaml:"output_dir,omitempty"`
	BaseURL       string `yaml:"base_url,omitempty"`
	ProgressEvent string `yaml:"progress_event,omitempty"`
}

// IdentityConfig names the principal on whose behalf media is stored. A
// token is validated with the HMAC secret or the JWKS endpoint; otherwise
// Subject is used as is.
type IdentityConfig struct {
	Subject    string `yaml:"subject,omitempty"`
	Token      string `yaml:"token,omitempty"`
	HMACSecret string `yaml:"hmac_secret,omitempty"`
	JWKSURL    string `yaml:"jwks_url,omitempty"`
	Issuer     string `yaml:"issuer,omitempty"`
	Audience   string `yaml:"audience,omitempty"`
}

// Load reads and validates the configuration file at path. An empty path
// means DefaultConfigFile.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML (or JSON) configuration, expands ${VAR} references in
// credentials, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.expandEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file %s: %w", path, err)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DefaultServer == "" && len(c.Servers) > 0 {
		c.DefaultServer = c.Servers[0].Name
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = DefaultOutputDir
	}
	for i := range c.Servers {
		if c.Servers[i].Timeout == "" {
			c.Servers[i].Timeout = DefaultRequestTimeout
		}
		if c.Servers[i].Auth.Type == "" {
			c.Servers[i].Auth.Type = AuthNone
		}
	}
}

// Validate reports the first problem found in the configuration.
func (c *Config) Validate() error {
	if _, ok := logx.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server must be configured")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("server %s: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("server %s: %w", s.Name, err)
		}
	}
	if c.DefaultServer != "" && !seen[c.DefaultServer] {
		return fmt.Errorf("default server %q is not configured", c.DefaultServer)
	}
	if c.Pipeline.FilePrefix != "" && strings.ContainsAny(c.Pipeline.FilePrefix, `/\`) {
		return fmt.Errorf("file prefix %q must not contain path separators", c.Pipeline.FilePrefix)
	}
	if c.Identity.HMACSecret != "" && c.Identity.JWKSURL != "" {
		return fmt.Errorf("identity: hmac_secret and jwks_url are mutually exclusive")
	}
	return nil
}

// Validate checks a single server entry.
func (s ServerConfig) Validate() error {
	switch {
	case s.URL == "" && s.Command == "":
		return fmt.Errorf("one of url or command is required")
	case s.URL != "" && s.Command != "":
		return fmt.Errorf("url and command are mutually exclusive")
	}
	if s.URL != "" && !hasScheme(s.URL, "ws://", "wss://", "http://", "https://") {
		return fmt.Errorf("url must start with ws://, wss://, http:// or https://, got: %s", s.URL)
	}
	if _, err := s.RequestTimeout(); err != nil {
		return err
	}
	return s.Auth.Validate()
}

// RequestTimeout parses Timeout. An empty value yields zero.
func (s ServerConfig) RequestTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", s.Timeout)
	}
	return d, nil
}

// Validate checks that the fields the auth type needs are present.
func (a AuthConfig) Validate() error {
	switch a.Type {
	case "", AuthNone:
	case AuthBearer:
		if a.Token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case AuthBasic:
		if a.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
	case AuthSigned:
		if a.Secret == "" {
			return fmt.Errorf("signed auth requires a secret")
		}
		if a.TTL != "" {
			if _, err := time.ParseDuration(a.TTL); err != nil {
				return fmt.Errorf("invalid ttl %q", a.TTL)
			}
		}
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	return nil
}

// Provider builds the auth provider for a server.
func (a AuthConfig) Provider() (auth.AuthProvider, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch a.Type {
	case AuthBearer:
		return auth.NewBearerAuth(a.Token), nil
	case AuthBasic:
		return auth.NewBasicAuth(a.Username, a.Password), nil
	case AuthSigned:
		var ttl time.Duration
		if a.TTL != "" {
			ttl, _ = time.ParseDuration(a.TTL)
		}
		return auth.NewSignedTokenAuth(auth.SignedTokenConfig{
			Secret:   []byte(a.Secret),
			Subject:  a.Subject,
			Issuer:   a.Issuer,
			Audience: a.Audience,
			TTL:      ttl,
		})
	default:
		return auth.NewNoAuth(), nil
	}
}

// Server returns the named server, or the default one when name is empty.
func (c *Config) Server(name string) (*ServerConfig, error) {
	if name == "" {
		name = c.DefaultServer
	}
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server %q is not configured", name)
}

// Level returns the configured log level.
func (c *Config) Level() protocol.LoggingLevel {
	if level, ok := logx.ParseLevel(c.LogLevel); ok {
		return level
	}
	return protocol.LogLevelInfo
}

// Principal resolves the identity media is stored under. It returns nil when
// no identity is configured.
func (i IdentityConfig) Principal(ctx context.Context, client *http.Client) (auth.Principal, error) {
	if i.Token == "" {
		if i.Subject == "" {
			return nil, nil
		}
		return auth.NewStaticPrincipal(i.Subject, nil), nil
	}

	claims := auth.ClaimsConfig{ExpectedIssuer: i.Issuer, ExpectedAudience: i.Audience}
	var validator auth.TokenValidator
	switch {
	case i.HMACSecret != "":
		v, err := auth.NewHMACTokenValidator([]byte(i.HMACSecret), claims)
		if err != nil {
			return nil, err
		}
		validator = v
	case i.JWKSURL != "":
		v, err := auth.NewJWKSTokenValidator(ctx, auth.JWKSConfig{ClaimsConfig: claims, JWKSURL: i.JWKSURL}, client)
		if err != nil {
			return nil, err
		}
		validator = v
	default:
		return nil, fmt.Errorf("identity token given without hmac_secret or jwks_url")
	}
	return validator.ValidateToken(ctx, i.Token)
}

func (c *Config) expandEnv() {
	for i := range c.Servers {
		s := &c.Servers[i]
		s.Auth.Token = expandEnvVars(s.Auth.Token)
		s.Auth.Password = expandEnvVars(s.Auth.Password)
		s.Auth.Secret = expandEnvVars(s.Auth.Secret)
		for k, v := range s.Headers {
			s.Headers[k] = expandEnvVars(v)
		}
	}
	c.Identity.Token = expandEnvVars(c.Identity.Token)
	c.Identity.HMACSecret = expandEnvVars(c.Identity.HMACSecret)
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

func hasScheme(url string, schemes ...string) bool {
	for _, scheme := range schemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
