package envvars

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const (
	RawgAPIKey        = "RAWG_API_KEY"
	FirebaseAPIKey    = "FIREBASE_API_KEY"
	FirebaseProjectID = "FIREBASE_PROJECT_ID"
	Environment       = "ENVIRONMENT"
	TaxRate           = "TAX_RATE"
	RedisAddr         = "REDIS_ADDR"
	Port              = "PORT"
)

const (
	ProductionEnv = "production"
	DevEnv        = "dev"
)

type Env struct {
	RawgAPIKey        string        `envconfig:"RAWG_API_KEY" required:"true"`
	FirebaseAPIKey    string        `envconfig:"FIREBASE_API_KEY" required:"true"`
	FirebaseProjectID string        `envconfig:"FIREBASE_PROJECT_ID" required:"true"`
	Environment       string        `envconfig:"ENVIRONMENT" default:"dev"`
	TaxRate           float64       `envconfig:"TAX_RATE" default:"0.21"`
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	Port              string        `envconfig:"PORT" default:"8080"`
	DeviceTTL         time.Duration `envconfig:"DEVICE_TTL" default:"24h"`
	MaxDevices        int           `envconfig:"MAX_DEVICES" default:"10000"`
}

// Load reads the environment, picking up a .env file when one is present.
func Load() (Env, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

func GetEvn() Env {
	env, err := Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid environment")
	}
	return env
}

func IsProd(env Env) bool {
	return env.Environment == ProductionEnv
}

func IsDev(env Env) bool {
	return env.Environment == DevEnv
}
