package config

import (
	"time"
)

const (
	LedgerBackendMongo    = "mongodb"
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

type DatabaseConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	MinPoolSize    int           `yaml:"min_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SocketTimeout  time.Duration `yaml:"socket_timeout"`
	// LedgerBackend selects the store holding rides and reservations.
	// Chat data always lives in MongoDB unless the backend is "memory".
	LedgerBackend string `yaml:"ledger_backend"`
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		Database:       getEnv("MONGODB_DATABASE", "carpool"),
		MaxPoolSize:    getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100),
		MinPoolSize:    getEnvAsInt("MONGODB_MIN_POOL_SIZE", 5),
		ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		SocketTimeout:  getEnvAsDuration("MONGODB_SOCKET_TIMEOUT", 30*time.Second),
		LedgerBackend:  getEnv("LEDGER_BACKEND", LedgerBackendMongo),
	}
}
