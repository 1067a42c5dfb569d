package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every override, e.g. MUSICROOM_HTTP_ADDR.
const EnvPrefix = "MUSICROOM"

type HTTP struct {
	Addr           string        `yaml:"addr" split_words:"true"`
	ReadTimeout    time.Duration `yaml:"readTimeout" split_words:"true"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" split_words:"true"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" split_words:"true"`
	RequestTimeout time.Duration `yaml:"requestTimeout" split_words:"true"`
	AllowedOrigins []string      `yaml:"allowedOrigins" split_words:"true"`
}

func (h *HTTP) Validate() error {
	if h.Addr == "" {
		return errors.New("http.addr is required")
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 15 * time.Second
	}
	// long enough for the upgrade handshake; sockets clear their own deadlines
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Second
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 60 * time.Second
	}
	if h.RequestTimeout <= 0 {
		h.RequestTimeout = 30 * time.Second
	}
	return nil
}

type GRPC struct {
	Addr string `yaml:"addr" split_words:"true"`
}

func (g *GRPC) Validate() error {
	if g.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	return nil
}

type Logging struct {
	Env       string `yaml:"env" split_words:"true"`     // dev|stage|prod
	Service   string `yaml:"service" split_words:"true"` // music-room
	Version   string `yaml:"version" split_words:"true"`
	Backend   string `yaml:"backend" split_words:"true"` // std|zap
	Level     string `yaml:"level" split_words:"true"`   // debug|info|warn|error
	AddSource bool   `yaml:"addSource" split_words:"true"`
	Debug     bool   `yaml:"debug" split_words:"true"`
}

func (l *Logging) Validate() error {
	if l.Service == "" {
		l.Service = "music-room"
	}
	if l.Version == "" {
		l.Version = "v0.1.0"
	}
	switch l.Backend {
	case "", "std", "zap":
	default:
		return fmt.Errorf("logging.backend %q: want std or zap", l.Backend)
	}
	return nil
}

type JWT struct {
	PublicKeyPath string        `yaml:"publicKeyPath" split_words:"true"`
	Issuer        string        `yaml:"issuer" split_words:"true"`
	Audience      string        `yaml:"audience" split_words:"true"`
	ClockSkew     time.Duration `yaml:"clockSkew" split_words:"true"`
}

func (j *JWT) Validate() error {
	if j.PublicKeyPath == "" {
		return errors.New("auth.jwt.publicKeyPath is required")
	}
	if j.Issuer == "" {
		return errors.New("auth.jwt.issuer is required")
	}
	if j.ClockSkew < 0 || j.ClockSkew > time.Minute {
		return errors.New("auth.jwt.clockSkew must be in [0..1m]")
	}
	return nil
}

type IdentityAPI struct {
	BaseURL   string        `yaml:"baseURL" split_words:"true"`
	Timeout   time.Duration `yaml:"timeout" split_words:"true"`
	CacheTTL  time.Duration `yaml:"cacheTTL" split_words:"true"`
	CacheSize int           `yaml:"cacheSize" split_words:"true"`
}

type Auth struct {
	Mode     string      `yaml:"mode" split_words:"true"` // jwt|identity
	JWT      JWT         `yaml:"jwt" envconfig:"JWT"`
	Identity IdentityAPI `yaml:"identity" envconfig:"IDENTITY"`
}

func (a *Auth) Validate() error {
	switch a.Mode {
	case "", "identity":
		a.Mode = "identity"
		return nil
	case "jwt":
		return a.JWT.Validate()
	default:
		return fmt.Errorf("auth.mode %q: want jwt or identity", a.Mode)
	}
}

type Room struct {
	AutoNextBuffer   time.Duration `yaml:"autoNextBuffer" split_words:"true"`
	HistoryLimit     int           `yaml:"historyLimit" split_words:"true"`
	UserQueueLimit   int           `yaml:"userQueueLimit" split_words:"true"`
	TrackEndedWindow time.Duration `yaml:"trackEndedWindow" split_words:"true"`
	InactivityGrace  time.Duration `yaml:"inactivityGrace" split_words:"true"`
}

func (r *Room) Validate() error {
	if r.AutoNextBuffer <= 0 {
		r.AutoNextBuffer = 500 * time.Millisecond
	}
	if r.HistoryLimit <= 0 {
		r.HistoryLimit = 20
	}
	if r.UserQueueLimit <= 0 {
		r.UserQueueLimit = 20
	}
	if r.TrackEndedWindow <= 0 {
		r.TrackEndedWindow = 5 * time.Second
	}
	if r.InactivityGrace <= 0 {
		r.InactivityGrace = 5 * time.Minute
	}
	return nil
}

type Resolver struct {
	Binary      string        `yaml:"binary" split_words:"true"`
	Timeout     time.Duration `yaml:"timeout" split_words:"true"`
	MaxAttempts int           `yaml:"maxAttempts" split_words:"true"`
	BaseDelay   time.Duration `yaml:"baseDelay" split_words:"true"`
}

func (r *Resolver) Validate() error {
	if r.Binary == "" {
		r.Binary = "yt-dlp"
	}
	if r.Timeout <= 0 {
		r.Timeout = 15 * time.Second
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 2 * time.Second
	}
	return nil
}

type YouTube struct {
	APIKey string `yaml:"apiKey" split_words:"true"`
	Limit  int64  `yaml:"limit" split_words:"true"`
}

type Realtime struct {
	PingEvery  time.Duration `yaml:"pingEvery" split_words:"true"`
	SendBuffer int           `yaml:"sendBuffer" split_words:"true"`
}

func (r *Realtime) Validate() error {
	if r.PingEvery <= 0 {
		r.PingEvery = 15 * time.Second
	}
	if r.SendBuffer <= 0 {
		r.SendBuffer = 256
	}
	return nil
}

type Config struct {
	HTTP     HTTP     `yaml:"http" envconfig:"HTTP"`
	GRPC     GRPC     `yaml:"grpc" envconfig:"GRPC"`
	Logging  Logging  `yaml:"logging" envconfig:"LOGGING"`
	Auth     Auth     `yaml:"auth" envconfig:"AUTH"`
	Room     Room     `yaml:"room" envconfig:"ROOM"`
	Resolver Resolver `yaml:"resolver" envconfig:"RESOLVER"`
	YouTube  YouTube  `yaml:"youtube" envconfig:"YOUTUBE"`
	Realtime Realtime `yaml:"realtime" envconfig:"REALTIME"`
}

func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.HTTP, &c.GRPC, &c.Logging, &c.Auth, &c.Room, &c.Resolver, &c.Realtime,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads CONFIG_PATH (default ./config/config.yaml), then applies
// MUSICROOM_* environment overrides. A .env file is loaded first if present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
