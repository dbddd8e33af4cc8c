package config

import "fmt"

type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Exchange string `yaml:"exchange"`
}

func (r *RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", r.User, r.Password, r.Host, r.Port, r.VHost)
}

func loadRabbitMQConfig() *RabbitMQConfig {
	return &RabbitMQConfig{
		Enabled:  getEnvAsBool("RABBITMQ_ENABLED", true),
		Host:     getEnv("RABBITMQ_HOST", "localhost"),
		Port:     getEnvAsInt("RABBITMQ_PORT", 5672),
		User:     getEnv("RABBITMQ_USER", "guest"),
		Password: getEnv("RABBITMQ_PASSWORD", "guest"),
		VHost:    getEnv("RABBITMQ_VHOST", ""),
		Exchange: getEnv("RABBITMQ_EXCHANGE", "carpool.notifications"),
	}
}
