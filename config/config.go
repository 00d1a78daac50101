package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type RelayConfig struct {
	// PresenceInterval is how often each room announces its occupant count.
	PresenceInterval time.Duration `mapstructure:"presence_interval"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig describes the optional match-record archive. The relay keeps
// all room state in memory; Postgres is only appended to when a match ends.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Driver   string `mapstructure:"driver"` // "gorm" or "sql"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("server.metrics_address", ":9100")
	viper.SetDefault("relay.presence_interval", "1s")
	viper.SetDefault("database.postgres.enabled", false)
	viper.SetDefault("database.postgres.driver", "gorm")
	viper.SetDefault("database.postgres.port", 5432)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		// The relay runs fine on defaults; only a malformed file is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = viper.Unmarshal(&config)
	return
}
