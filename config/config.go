package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultGregBaseURL greg.app site root
const DefaultGregBaseURL = "http://greg.app"

// DefaultGeminiModel model used for care tips
const DefaultGeminiModel = "gemini-1.5-flash"

// Config application configuration
type Config struct {
	Initialized bool            `json:"initialized" yaml:"initialized"`
	Device      DeviceConfig    `json:"device" yaml:"device"`
	Greg        GregConfig      `json:"greg" yaml:"greg"`
	Collector   CollectorConfig `json:"collector" yaml:"collector"`
	Gemini      GeminiConfig    `json:"gemini" yaml:"gemini"`
	MQTT        MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	Server      ServerConfig    `json:"server" yaml:"server"`
	Database    DatabaseConfig  `json:"database" yaml:"database"`
	Auth        AuthConfig      `json:"auth" yaml:"auth"`
	Log         LogConfig       `json:"log" yaml:"log"`

	path      string
	overrides map[string]envOverride
}

var saveMu sync.Mutex

// DeviceConfig identity of this hub
type DeviceConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// GregConfig greg.app scraping settings
type GregConfig struct {
	Username          string  `json:"username" yaml:"username"`
	BaseURL           string  `json:"base_url" yaml:"base_url"`
	TimeoutSeconds    int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxPageBytes      int64   `json:"max_page_bytes" yaml:"max_page_bytes"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// CollectorConfig periodic collection settings
type CollectorConfig struct {
	IntervalSeconds int  `json:"interval_seconds" yaml:"interval_seconds"`
	Workers         int  `json:"workers" yaml:"workers"`
	RetentionDays   int  `json:"retention_days" yaml:"retention_days"` // 0 keeps everything
	AutoInsights    bool `json:"auto_insights" yaml:"auto_insights"`
}

// GeminiConfig generative language API settings
type GeminiConfig struct {
	APIKey         string `json:"api_key" yaml:"api_key"`
	Model          string `json:"model" yaml:"model"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// MQTTConfig broker settings
type MQTTConfig struct {
	Server      string `json:"server" yaml:"server"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	// AutoConnect connect at startup when a server is configured
	AutoConnect bool `json:"auto_connect" yaml:"auto_connect"`
}

// ServerConfig HTTP API listener
type ServerConfig struct {
	Port int    `json:"port" yaml:"port"`
	Host string `json:"host" yaml:"host"`
}

// DatabaseConfig SQLite location
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// AuthConfig admin and display credentials
type AuthConfig struct {
	PasswordHash string `json:"password_hash" yaml:"password_hash"` // bcrypt hash
	JWTSecret    string `json:"jwt_secret" yaml:"jwt_secret"`
	// DisplayKey shared secret the ESP32 sends as X-Device-Key; empty leaves the display API open
	DisplayKey string `json:"display_key" yaml:"display_key"`
}

// LogConfig logging settings
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns defaults
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "plantcare_hub",
			Name: "PlantCare Hub",
		},
		Greg: GregConfig{
			BaseURL:           DefaultGregBaseURL,
			TimeoutSeconds:    20,
			MaxPageBytes:      512 * 1024,
			RequestsPerSecond: 1,
		},
		Collector: CollectorConfig{
			IntervalSeconds: 3600,
			Workers:         2,
			RetentionDays:   90,
		},
		Gemini: GeminiConfig{
			Model:          DefaultGeminiModel,
			BaseURL:        "https://generativelanguage.googleapis.com",
			TimeoutSeconds: 30,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			ClientID:    "plantcare_hub",
			TopicPrefix: "plantcare",
			AutoConnect: true,
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Path: defaultDBPath(),
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultConfigPath() string {
	if runtime.GOOS == "linux" {
		return "/etc/plantcare/config.json"
	}
	if wd, err := os.Getwd(); err == nil && strings.TrimSpace(wd) != "" {
		return filepath.Join(wd, "config.json")
	}
	return filepath.Join(os.TempDir(), "plantcare", "config.json")
}

func defaultDBPath() string {
	if runtime.GOOS == "linux" {
		return "/var/lib/plantcare/plants.db"
	}
	if wd, err := os.Getwd(); err == nil && strings.TrimSpace(wd) != "" {
		return filepath.Join(wd, "data", "plants.db")
	}
	return filepath.Join(os.TempDir(), "plantcare", "plants.db")
}

// GetConfigPath resolves the config file path
func GetConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("PLANTCARE_CONFIG")); p != "" {
		return p
	}
	return defaultConfigPath()
}

// LoadConfig loads the config from GetConfigPath
func LoadConfig() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads the config at path. A missing file is created with defaults.
// Files ending in .yaml/.yml are decoded as YAML, everything else as JSON.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.path = path
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.path = path

	// fill zero values left by older config files
	if cfg.fillDefaults() {
		_ = cfg.Save()
	}
	cfg.applyEnv()
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) fillDefaults() bool {
	def := DefaultConfig()
	changed := false
	if strings.TrimSpace(c.Greg.BaseURL) == "" {
		c.Greg.BaseURL = def.Greg.BaseURL
		changed = true
	}
	if c.Greg.TimeoutSeconds <= 0 {
		c.Greg.TimeoutSeconds = def.Greg.TimeoutSeconds
		changed = true
	}
	if c.Greg.MaxPageBytes <= 0 {
		c.Greg.MaxPageBytes = def.Greg.MaxPageBytes
		changed = true
	}
	if c.Greg.RequestsPerSecond <= 0 {
		c.Greg.RequestsPerSecond = def.Greg.RequestsPerSecond
		changed = true
	}
	if c.Collector.IntervalSeconds <= 0 {
		c.Collector.IntervalSeconds = def.Collector.IntervalSeconds
		changed = true
	}
	if c.Collector.Workers <= 0 {
		c.Collector.Workers = def.Collector.Workers
		changed = true
	}
	if strings.TrimSpace(c.Gemini.Model) == "" {
		c.Gemini.Model = def.Gemini.Model
		changed = true
	}
	if strings.TrimSpace(c.Gemini.BaseURL) == "" {
		c.Gemini.BaseURL = def.Gemini.BaseURL
		changed = true
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = def.Gemini.TimeoutSeconds
		changed = true
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = def.MQTT.Port
		changed = true
	}
	if strings.TrimSpace(c.MQTT.ClientID) == "" {
		if id := strings.TrimSpace(c.Device.ID); id != "" {
			c.MQTT.ClientID = id
		} else {
			c.MQTT.ClientID = def.MQTT.ClientID
		}
		changed = true
	}
	if strings.TrimSpace(c.MQTT.TopicPrefix) == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
		changed = true
	}
	if c.Server.Port <= 0 {
		c.Server.Port = def.Server.Port
		changed = true
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = def.Database.Path
		changed = true
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = def.Log.Level
		changed = true
	}
	return changed
}

type envField struct {
	key string
	get func(*Config) string
	set func(*Config, string)
}

var envFields = []envField{
	{"PLANTCARE_GREG_USERNAME",
		func(c *Config) string { return c.Greg.Username },
		func(c *Config, v string) { c.Greg.Username = v }},
	{"PLANTCARE_GEMINI_API_KEY",
		func(c *Config) string { return c.Gemini.APIKey },
		func(c *Config, v string) { c.Gemini.APIKey = v }},
	{"PLANTCARE_DB_PATH",
		func(c *Config) string { return c.Database.Path },
		func(c *Config, v string) { c.Database.Path = v }},
	{"PLANTCARE_HTTP_PORT",
		func(c *Config) string { return strconv.Itoa(c.Server.Port) },
		func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.Server.Port = n
			}
		}},
	{"PLANTCARE_DISPLAY_KEY",
		func(c *Config) string { return c.Auth.DisplayKey },
		func(c *Config, v string) { c.Auth.DisplayKey = v }},
	{"PLANTCARE_MQTT_SERVER",
		func(c *Config) string { return c.MQTT.Server },
		func(c *Config, v string) { c.MQTT.Server = v }},
}

// envOverride file value a field had before the environment replaced it
type envOverride struct {
	file string
	env  string
}

// applyEnv overrides selected fields from the environment. Save writes the file
// values back for fields still holding their override.
func (c *Config) applyEnv() {
	for _, f := range envFields {
		v := strings.TrimSpace(os.Getenv(f.key))
		if v == "" {
			continue
		}
		before := f.get(c)
		f.set(c, v)
		after := f.get(c)
		if after == before {
			continue
		}
		if c.overrides == nil {
			c.overrides = make(map[string]envOverride)
		}
		c.overrides[f.key] = envOverride{file: before, env: after}
	}
}

// persisted copy of c with environment overrides replaced by the file values
func (c *Config) persisted() Config {
	out := *c
	for _, f := range envFields {
		o, ok := c.overrides[f.key]
		if ok && f.get(&out) == o.env {
			f.set(&out, o.file)
		}
	}
	return out
}

// Path file this config was loaded from
func (c *Config) Path() string {
	if c.path == "" {
		return GetConfigPath()
	}
	return c.path
}

// Save writes the config back to disk through a temp file + rename.
// Environment overrides are not written unless the field was changed since load.
func (c *Config) Save() error {
	saveMu.Lock()
	defer saveMu.Unlock()

	path := c.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	out := c.persisted()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(&out)
	} else {
		data, err = json.MarshalIndent(&out, "", "  ")
	}
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks fields the hub cannot run without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Collector.Workers <= 0 {
		return fmt.Errorf("collector workers must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	return nil
}

// Redacted copy safe to hand to API clients
func (c *Config) Redacted() Config {
	out := Config{
		Initialized: c.Initialized,
		Device:      c.Device,
		Greg:        c.Greg,
		Collector:   c.Collector,
		Gemini:      c.Gemini,
		MQTT:        c.MQTT,
		Server:      c.Server,
		Database:    c.Database,
		Log:         c.Log,
	}
	if out.Gemini.APIKey != "" {
		out.Gemini.APIKey = "********"
	}
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	return out
}
