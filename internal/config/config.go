package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so it can be written as "10s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds the courierd configuration, loaded from a TOML file with
// optional environment overrides for secrets.
type Config struct {
	ListenAddr     string   `toml:"listen_addr"`
	DataDir        string   `toml:"data_dir"`
	DBPath         string   `toml:"db_path"`
	LogPath        string   `toml:"log_path"`
	AllowedOrigins []string `toml:"allowed_origins"`

	// TokenSecret signs and verifies the HS256 tokens the marketplace
	// backend issues. COURIER_TOKEN_SECRET takes precedence over the file.
	TokenSecret string `toml:"token_secret"`
	TokenIssuer string `toml:"token_issuer"`

	// JoinGrace is how long an upgraded connection may wait before
	// presenting a join credential.
	JoinGrace Duration `toml:"join_grace"`

	// MaxBodyLen bounds private message bodies, in bytes.
	MaxBodyLen int `toml:"max_body_len"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8080",
		DataDir:        ".",
		DBPath:         "courier.db",
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		TokenIssuer:    "lancera",
		JoinGrace:      Duration(10 * time.Second),
		MaxBodyLen:     1000,
	}
}

// Load reads config from the given path on top of the defaults. An empty
// path skips the file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if secret := os.Getenv("COURIER_TOKEN_SECRET"); secret != "" {
		cfg.TokenSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("token_secret is required (set it in the config file or COURIER_TOKEN_SECRET)")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.MaxBodyLen <= 0 {
		return fmt.Errorf("max_body_len must be positive")
	}
	if time.Duration(c.JoinGrace) <= 0 {
		return fmt.Errorf("join_grace must be positive")
	}
	return nil
}
