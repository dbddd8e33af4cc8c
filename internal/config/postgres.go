package config

import (
	"fmt"
	"time"
)

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConns        int32         `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

func loadPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnvAsInt("POSTGRES_PORT", 5432),
		User:            getEnv("POSTGRES_USER", "carpool"),
		Password:        getEnv("POSTGRES_PASSWORD", ""),
		Database:        getEnv("POSTGRES_DB", "carpool"),
		SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns:        int32(getEnvAsInt("POSTGRES_MAX_CONNS", 20)),
		MaxConnLifetime: getEnvAsDuration("POSTGRES_MAX_CONN_LIFETIME", time.Hour),
	}
}
