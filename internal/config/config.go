package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// AuthConfig holds JWT settings for the identity layer.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// ChatConfig tunes the realtime core.
type ChatConfig struct {
	// PersistTimeout bounds each store call made by the hub; a send whose
	// insert exceeds it is rejected with persistence_error.
	PersistTimeout time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	// HistoryLimit is the number of recent messages delivered on join_chat.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
	// ClientBuffer is the size of each connection's outbound event queue.
	ClientBuffer int `mapstructure:"client_buffer" yaml:"client_buffer"`
}

// LiveKitConfig configures the optional call media backend.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	WSURL     string `mapstructure:"ws_url" yaml:"ws_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "tandemtalk.db",
		Auth: AuthConfig{
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "tandemtalk",
			JWTAudience: "tandemtalk-clients",
			TokenTTL:    24 * time.Hour,
		},
		Chat: ChatConfig{
			PersistTimeout: 3 * time.Second,
			HistoryLimit:   50,
			ClientBuffer:   16,
		},
		LiveKit: LiveKitConfig{
			Enabled: false,
			WSURL:   "ws://localhost:7880",
		},
	}
}
