package cache

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr     string `mapstructure:"Addr"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`

	// GeneralAccessTTL — срок жизни значений, влияющих на решения о доступе.
	// Намеренно короткий: протухшее разрешение — дефект безопасности,
	// протухший отказ — лишь неудобство.
	GeneralAccessTTL time.Duration `mapstructure:"GeneralAccessTTL"`
	// DisplayTTL — срок жизни навигационных данных (хлебные крошки, URL)
	DisplayTTL time.Duration `mapstructure:"DisplayTTL"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("Addr", "REDIS_ADDR")
	v.BindEnv("Password", "REDIS_PASSWORD")
	v.BindEnv("DB", "REDIS_DB")
	v.BindEnv("GeneralAccessTTL", "REDIS_GENERAL_ACCESS_TTL")
	v.BindEnv("DisplayTTL", "REDIS_DISPLAY_TTL")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.Addr == "" {
		cfg.Addr = v.GetString("REDIS_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.GeneralAccessTTL == 0 {
		cfg.GeneralAccessTTL = 30 * time.Second
	}
	if cfg.DisplayTTL == 0 {
		cfg.DisplayTTL = 5 * time.Minute
	}

	return &cfg, nil
}
