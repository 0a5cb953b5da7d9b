package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	// PostgresDSN empty selects the in-memory document store, for
	// single-node and development runs.
	PostgresDSN string `env:"POSTGRES_DSN"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`
	TokenSecret string `env:"TOKEN_SECRET" envDefault:"dev-secret"`

	DealMin int `env:"DEAL_MIN" envDefault:"1"`
	DealMax int `env:"DEAL_MAX" envDefault:"100"`

	PatchBufferSize int `env:"PATCH_BUFFER_SIZE" envDefault:"500"`
	CommandRetryMS  int `env:"COMMAND_RETRY_MS" envDefault:"150"`

	PresenceIdleMins int   `env:"PRESENCE_IDLE_MINUTES" envDefault:"30"`
	PresenceWindowMS int64 `env:"PRESENCE_WINDOW_MS" envDefault:"45000"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
