// Package config loads server configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable for the chat server.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":3000"`
	Env        string `envconfig:"APP_ENV" default:"production"`

	MongoURI  string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB   string `envconfig:"MONGO_DB" default:"parley"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"360h"`

	UploadDir     string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	UploadBaseURL string `envconfig:"UPLOAD_BASE_URL" default:"/uploads"`

	WSWorkerPoolSize int           `envconfig:"WS_WORKER_POOL_SIZE" default:"256"`
	WSMaxConnections int           `envconfig:"WS_MAX_CONNECTIONS" default:"100000"`
	WSReadTimeout    time.Duration `envconfig:"WS_READ_TIMEOUT" default:"10s"`
	WSWriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	// A missing .env is fine; real deployments configure the environment
	// directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
