package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	AccessTTL   time.Duration `env:"ACCESS_TOKEN_TTL,  default=15m"`
	RefreshTTL  time.Duration `env:"REFRESH_TOKEN_TTL, default=168h"`
	OTPTTL      time.Duration `env:"OTP_TTL,           default=10m"`
	MailWorkers int           `env:"MAIL_WORKERS,      default=4"`

	Mongo MongoConfig
	Redis RedisConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=hospital_auth"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

// ClientConfig configures hospctl and any other host of the session client.
type ClientConfig struct {
	APIBaseURL  string `env:"HOSPITAL_API_URL, default=http://localhost:8080"`
	SessionFile string `env:"HOSPITAL_SESSION_FILE"`
	LogLevel    string `env:"LOG_LEVEL, default=warn"`
}

// Load reads server configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}

// LoadClient reads client configuration from environment variables.
func LoadClient() *ClientConfig {
	var cfg ClientConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
