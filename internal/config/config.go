package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Gateway kinds.
const (
	GatewayWhatsmeow = "whatsmeow"
	GatewayGreenAPI  = "greenapi"
)

// Config represents ~/.wppq/config.toml.
type Config struct {
	DefaultSession string         `toml:"default_session"`
	LogLevel       string         `toml:"log_level"`
	Dispatch       DispatchConfig `toml:"dispatch"`
	Window         WindowConfig   `toml:"window"`
	Gateway        GatewayConfig  `toml:"gateway"`
	GreenAPI       GreenAPIConfig `toml:"greenapi"`
	Redis          RedisConfig    `toml:"redis"`
	API            APIConfig      `toml:"api"`
}

type DispatchConfig struct {
	SendTimeout Duration `toml:"send_timeout"`
	DailyLimit  int      `toml:"daily_limit"`
}

type WindowConfig struct {
	Timezone         string `toml:"timezone"`
	StartHour        int    `toml:"start_hour"`
	EndHour          int    `toml:"end_hour"`
	FridayCutoffHour int    `toml:"friday_cutoff_hour"`
	HolidaysFile     string `toml:"holidays_file"`
}

type GatewayConfig struct {
	Kind        string `toml:"kind"`
	CountryCode string `toml:"country_code"`
}

type GreenAPIConfig struct {
	BaseURL    string   `toml:"base_url"`
	InstanceID string   `toml:"instance_id"`
	Token      string   `toml:"token"`
	Timeout    Duration `toml:"timeout"`
}

// RedisConfig enables the delivery cache when Addr is set.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	TTL      Duration `toml:"ttl"`
}

// APIConfig selects where the operator API listens. Empty means the
// session's unix socket.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Dispatch: DispatchConfig{
			SendTimeout: Duration{30 * time.Second},
			DailyLimit:  200,
		},
		Window: WindowConfig{
			Timezone:         "Asia/Jerusalem",
			StartHour:        8,
			EndHour:          20,
			FridayCutoffHour: 14,
		},
		Gateway: GatewayConfig{
			Kind:        GatewayWhatsmeow,
			CountryCode: "972",
		},
		GreenAPI: GreenAPIConfig{
			BaseURL: "https://api.green-api.com",
			Timeout: Duration{20 * time.Second},
		},
		Redis: RedisConfig{
			TTL: Duration{24 * time.Hour},
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns
// an error wrapping fs.ErrNotExist if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file is missing.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv overrides fields from WPPQ_* variables. Values from envFile
// (a dotenv file, optional) are used only where the process environment
// does not set the variable.
func (c *Config) ApplyEnv(envFile string) error {
	fileEnv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", envFile, err)
		}
		if m != nil {
			fileEnv = m
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("WPPQ_SESSION", &c.DefaultSession)
	str("WPPQ_LOG_LEVEL", &c.LogLevel)
	str("WPPQ_GATEWAY", &c.Gateway.Kind)
	str("WPPQ_COUNTRY_CODE", &c.Gateway.CountryCode)
	str("WPPQ_TIMEZONE", &c.Window.Timezone)
	str("WPPQ_HOLIDAYS_FILE", &c.Window.HolidaysFile)
	str("WPPQ_GREENAPI_BASE_URL", &c.GreenAPI.BaseURL)
	str("WPPQ_GREENAPI_INSTANCE_ID", &c.GreenAPI.InstanceID)
	str("WPPQ_GREENAPI_TOKEN", &c.GreenAPI.Token)
	str("WPPQ_REDIS_ADDR", &c.Redis.Addr)
	str("WPPQ_REDIS_PASSWORD", &c.Redis.Password)
	str("WPPQ_API_LISTEN", &c.API.Listen)

	ints := []struct {
		key string
		dst *int
	}{
		{"WPPQ_DAILY_LIMIT", &c.Dispatch.DailyLimit},
		{"WPPQ_REDIS_DB", &c.Redis.DB},
	}
	for _, it := range ints {
		if v, ok := lookup(it.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: invalid int %q", it.key, v)
			}
			*it.dst = n
		}
	}

	if v, ok := lookup("WPPQ_SEND_TIMEOUT"); ok {
		if err := c.Dispatch.SendTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("WPPQ_SEND_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (w WindowConfig) Location() (*time.Location, error) {
	if w.Timezone == "" || w.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(w.Timezone)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if _, err := c.Window.Location(); err != nil {
		return fmt.Errorf("window.timezone: %w", err)
	}
	w := c.Window
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour <= w.StartHour || w.EndHour > 24 {
		return fmt.Errorf("window hours %d-%d are invalid", w.StartHour, w.EndHour)
	}
	if w.FridayCutoffHour < 0 || w.FridayCutoffHour > 24 {
		return fmt.Errorf("window.friday_cutoff_hour %d is invalid", w.FridayCutoffHour)
	}
	if c.Dispatch.SendTimeout.Duration < 0 {
		return errors.New("dispatch.send_timeout must not be negative")
	}
	switch c.Gateway.Kind {
	case GatewayWhatsmeow:
	case GatewayGreenAPI:
		if c.GreenAPI.InstanceID == "" || c.GreenAPI.Token == "" {
			return errors.New("greenapi gateway requires greenapi.instance_id and greenapi.token")
		}
	default:
		return fmt.Errorf("unknown gateway kind %q", c.Gateway.Kind)
	}
	return nil
}
