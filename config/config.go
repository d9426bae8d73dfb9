package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MARKETBUS"

// DebugMode enables verbose per-message logging in connectors.
var DebugMode = false

type VenueConfig struct {
	WsURL   string `mapstructure:"ws_url"`
	RestURL string `mapstructure:"rest_url"`
}

type KucoinConfig struct {
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	APIPassphrase string `mapstructure:"api_passphrase"`
}

type ConnectorConfig struct {
	Venue        string        `mapstructure:"venue"`
	Instruments  []string      `mapstructure:"instruments"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Depth        int           `mapstructure:"depth"`
	Restart      bool          `mapstructure:"restart"`
}

type Config struct {
	Debug bool `mapstructure:"debug"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Bus struct {
		Capacity        int `mapstructure:"capacity"`
		InboundCapacity int `mapstructure:"inbound_capacity"`
	} `mapstructure:"bus"`

	Poll struct {
		DefaultInterval time.Duration `mapstructure:"default_interval"`
	} `mapstructure:"poll"`

	Snapshot struct {
		Depth int `mapstructure:"depth"`
	} `mapstructure:"snapshot"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	GRPC struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"grpc"`

	NATS struct {
		URL           string `mapstructure:"url"`
		SubjectPrefix string `mapstructure:"subject_prefix"`
	} `mapstructure:"nats"`

	Kucoin KucoinConfig `mapstructure:"kucoin"`

	Venues          map[string]VenueConfig `mapstructure:"venues"`
	Connectors      []ConnectorConfig      `mapstructure:"connectors"`
	AvailableVenues []string               `mapstructure:"available_venues"`
}

var defaultVenues = map[string]VenueConfig{
	"binance":   {WsURL: "wss://stream.binance.com:9443/stream", RestURL: "https://api.binance.com"},
	"coinbase":  {WsURL: "wss://ws-feed.exchange.coinbase.com", RestURL: "https://api.exchange.coinbase.com"},
	"kraken":    {WsURL: "wss://ws.kraken.com", RestURL: "https://api.kraken.com"},
	"kucoin":    {RestURL: "https://api.kucoin.com"},
	"coingecko": {RestURL: "https://api.coingecko.com"},
	"mock":      {RestURL: "http://localhost:8000"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("bus.capacity", 1024)
	v.SetDefault("bus.inbound_capacity", 256)
	v.SetDefault("poll.default_interval", 5*time.Second)
	v.SetDefault("snapshot.depth", 5)
	v.SetDefault("metrics.addr", ":8080")
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "marketbus")
	v.SetDefault("kucoin.api_key", "")
	v.SetDefault("kucoin.api_secret", "")
	v.SetDefault("kucoin.api_passphrase", "")

	available := make([]string, 0, len(defaultVenues))
	for name, venue := range defaultVenues {
		v.SetDefault("venues."+name+".ws_url", venue.WsURL)
		v.SetDefault("venues."+name+".rest_url", venue.RestURL)
		available = append(available, name)
	}
	v.SetDefault("available_venues", available)
}

// Load reads .env, then the yaml config, then MARKETBUS_* environment overrides.
// An empty file searches ./config/marketbus.yaml and ./marketbus.yaml and tolerates neither existing.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("marketbus")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	DebugMode = cfg.Debug
	return cfg, nil
}

func (c *Config) Venue(name string) VenueConfig {
	if venue, ok := c.Venues[name]; ok {
		return venue
	}
	return defaultVenues[name]
}
