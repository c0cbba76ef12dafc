package internal

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                      string        `env:"HOST,default=0.0.0.0"`
	Port                      int           `env:"PORT,default=8000"`
	AdminPort                 int           `env:"ADMIN_PORT,default=8001"`
	LogLevel                  string        `env:"LOG_LEVEL,default=INFO"`
	BufferSize                int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize      int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout               time.Duration `env:"SINK_TIMEOUT,default=100ms"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ReapDelay                 time.Duration `env:"REAP_DELAY,default=5s"`
	CollapseReconnects        bool          `env:"COLLAPSE_RECONNECTS,default=false"`
	StoreBackend              string        `env:"STORE_BACKEND,default=memory"`
	SearchLimit               int           `env:"SEARCH_LIMIT,default=50"`
	ModerationWords           string        `env:"MODERATION_WORDS"`
	ModerationDictionaryDir   string        `env:"MODERATION_DICTIONARY_DIR"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	MonitorInterval           time.Duration `env:"MONITOR_INTERVAL,default=30s"`
	ReadLimit                 int64         `env:"READ_LIMIT,default=65536"`
}

// Load reads an optional .env file, then the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
