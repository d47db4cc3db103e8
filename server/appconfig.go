package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/localfirst/syncd/manage"
	"github.com/localfirst/syncd/realtime"
)

// EnvPrefix is the prefix of every environment variable read by the service.
const EnvPrefix = "SYNCD_"

// AppConfig defines application configuration loaded from files and environment.
type AppConfig struct {
	Env       string          `koanf:"env"`
	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Store     StoreConfig     `koanf:"store"`
	Tokens    TokensConfig    `koanf:"tokens"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
	MaxBodyBytes    int64         `koanf:"maxbodybytes"`
}

type DatabaseConfig struct {
	DSN            string `koanf:"dsn"`
	MigrateOnStart bool   `koanf:"migrateonstart"`
}

// StoreConfig selects the expiring key/value store. Driver is "valkey" or
// "buntdb"; buntdb with an empty path keeps everything in memory.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	Addr   string `koanf:"addr"`
	Prefix string `koanf:"prefix"`
	Path   string `koanf:"path"`
}

type TokensConfig struct {
	Issuer        string        `koanf:"issuer"`
	Audience      string        `koanf:"audience"`
	AccessSecret  string        `koanf:"accesssecret"`
	RefreshSecret string        `koanf:"refreshsecret"`
	AccessTTL     time.Duration `koanf:"accessttl"`
	RefreshTTL    time.Duration `koanf:"refreshttl"`
	TicketTTL     time.Duration `koanf:"ticketttl"`
	StoreTimeout  time.Duration `koanf:"storetimeout"`
}

type RealtimeConfig struct {
	Path           string        `koanf:"path"`
	AllowedOrigins []string      `koanf:"allowedorigins"`
	ProtocolPrefix string        `koanf:"protocolprefix"`
	SendBuffer     int           `koanf:"sendbuffer"`
	MaxMessageSize int64         `koanf:"maxmessagesize"`
	PingPeriod     time.Duration `koanf:"pingperiod"`
	PongWait       time.Duration `koanf:"pongwait"`
	WriteWait      time.Duration `koanf:"writewait"`
	RefreshLead    time.Duration `koanf:"refreshlead"`
}

// RateLimitConfig bounds how often one user may request a connection ticket.
type RateLimitConfig struct {
	TicketEvery time.Duration `koanf:"ticketevery"`
	TicketBurst int           `koanf:"ticketburst"`
}

// LoadOptions override the CONFIG_DIR and APP_ENV environment variables.
type LoadOptions struct {
	ConfigDir string
	Env       string
	// Files forces file loading on; otherwise APP_CONFIG_FILES decides.
	Files bool
}

var (
	cfgOnce sync.Once
	cfgInst *AppConfig
)

// GetConfig loads and returns the singleton AppConfig from the process
// environment. Load errors are logged and leave the defaults in place.
func GetConfig() *AppConfig {
	cfgOnce.Do(func() {
		c, err := LoadAppConfig(LoadOptions{})
		if err != nil {
			log.Printf("config: %v", err)
		}
		cfgInst = c
	})
	return cfgInst
}

// LoadAppConfig reads configuration in this order, later sources winning:
// 1) <dir>/config.yaml (optional)
// 2) <dir>/config.<env>.yaml (optional), env defaults to "local"
// 3) Environment variables with prefix SYNCD_ mapped using __ as nested separator, e.g. SYNCD_TOKENS__ACCESSTTL
//
// Files are read only when opts.Files is set or APP_CONFIG_FILES is 1/true.
// The returned config is never nil.
func LoadAppConfig(opts LoadOptions) (*AppConfig, error) {
	k := koanf.New(".")
	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = os.Getenv("CONFIG_DIR")
	}
	if configDir == "" {
		configDir = "config"
	}
	loadFiles := opts.Files ||
		strings.EqualFold(os.Getenv("APP_CONFIG_FILES"), "1") ||
		strings.EqualFold(os.Getenv("APP_CONFIG_FILES"), "true")

	envName := opts.Env
	if envName == "" {
		envName = os.Getenv("APP_ENV")
	}
	if envName == "" {
		envName = "local"
	}

	var firstErr error
	if loadFiles {
		for _, name := range []string{"config.yaml", "config." + envName + ".yaml"} {
			path := filepath.Join(configDir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// SYNCD_TOKENS__ACCESSTTL -> tokens.accessttl
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("load env: %w", err)
	}

	var c AppConfig
	if err := k.Unmarshal("", &c); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("unmarshal: %w", err)
	}
	if c.Env == "" {
		c.Env = envName
	}
	c.applyDefaults()
	return &c, firstErr
}

func (c *AppConfig) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "buntdb"
	}
	if c.RateLimit.TicketEvery <= 0 {
		c.RateLimit.TicketEvery = 2 * time.Second
	}
	if c.RateLimit.TicketBurst <= 0 {
		c.RateLimit.TicketBurst = 5
	}
}

// DatabaseDSN returns the effective DSN (config first, then SYNCD_MIGRATE_DSN).
func (c *AppConfig) DatabaseDSN() string {
	if c != nil && c.Database.DSN != "" {
		return strings.TrimSpace(c.Database.DSN)
	}
	return strings.TrimSpace(os.Getenv("SYNCD_MIGRATE_DSN"))
}

// TokenConfig converts the tokens section for manage.NewManager.
func (c *AppConfig) TokenConfig() manage.Config {
	t := c.Tokens
	return manage.Config{
		Issuer:        t.Issuer,
		Audience:      t.Audience,
		AccessSecret:  []byte(t.AccessSecret),
		RefreshSecret: []byte(t.RefreshSecret),
		AccessTTL:     t.AccessTTL,
		RefreshTTL:    t.RefreshTTL,
		TicketTTL:     t.TicketTTL,
		StoreTimeout:  t.StoreTimeout,
	}
}

// SyncConfig converts the realtime section for realtime.NewServer. Zero
// values fall back to realtime.DefaultConfig.
func (c *AppConfig) SyncConfig() realtime.Config {
	r := c.Realtime
	return realtime.Config{
		Path:           r.Path,
		AllowedOrigins: r.AllowedOrigins,
		ProtocolPrefix: r.ProtocolPrefix,
		SendBuffer:     r.SendBuffer,
		MaxMessageSize: r.MaxMessageSize,
		PingPeriod:     r.PingPeriod,
		PongWait:       r.PongWait,
		WriteWait:      r.WriteWait,
		RefreshLead:    r.RefreshLead,
	}
}

// ServerConfig converts the HTTP and rate limit sections.
func (c *AppConfig) ServerConfig() *Config {
	cfg := NewConfig()
	cfg.TicketEvery = c.RateLimit.TicketEvery
	cfg.TicketBurst = c.RateLimit.TicketBurst
	cfg.MaxBodyBytes = c.HTTP.MaxBodyBytes
	return cfg
}
