package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	EndpointTimeout time.Duration `mapstructure:"endpoint_timeout"`
	CleanupWorkers  int           `mapstructure:"cleanup_workers"`
	StunServer      string        `mapstructure:"stun_server"`
	DestroyClients  bool          `mapstructure:"destroy_clients"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("endpoint_timeout", "10s")
	v.SetDefault("cleanup_workers", 8)
	v.SetDefault("stun_server", "stun:stun.l.google.com:19302")
	v.SetDefault("destroy_clients", false)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Endpoint timeout: %s\n", cfg.Mode, cfg.Port, cfg.EndpointTimeout)
	return &cfg, nil
}
