package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	// Driver selects the persistence backend: "gorm" or "postgres" (raw database/sql).
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GameConfig carries the registry-level settlement parameters.
type GameConfig struct {
	Owner          string        `mapstructure:"owner"`
	FeeRecipient   string        `mapstructure:"fee_recipient"`
	FeeBasisPoints uint64        `mapstructure:"fee_basis_points"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	WaitingTTL     time.Duration `mapstructure:"waiting_ttl"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	viper.SetDefault("database.driver", "gorm")
	viper.SetDefault("game.fee_basis_points", 250)
	viper.SetDefault("game.sweep_interval", time.Second)
	viper.SetDefault("game.waiting_ttl", time.Hour)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
