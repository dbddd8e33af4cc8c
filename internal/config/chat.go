package config

import (
	"time"
)

const (
	BusBackendLocal = "local"
	BusBackendRedis = "redis"
)

type ChatConfig struct {
	ReplayLimit       int    `yaml:"replay_limit"`
	MaxMessageLength  int    `yaml:"max_message_length"`
	HiddenPlaceholder string `yaml:"hidden_placeholder"`
	BusBackend        string `yaml:"bus_backend"`
	// Unread messages older than NotificationThreshold are batched into one
	// notice per recipient every NotificationInterval.
	NotificationThreshold time.Duration `yaml:"notification_threshold"`
	NotificationInterval  time.Duration `yaml:"notification_interval"`
	NotificationLockTTL   time.Duration `yaml:"notification_lock_ttl"`
}

func loadChatConfig() *ChatConfig {
	threshold := getEnvAsDuration("CHAT_NOTIFICATION_THRESHOLD", 15*time.Minute)

	return &ChatConfig{
		ReplayLimit:           getEnvAsInt("CHAT_REPLAY_LIMIT", 50),
		MaxMessageLength:      getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 1000),
		HiddenPlaceholder:     getEnv("CHAT_HIDDEN_PLACEHOLDER", "This message has been removed."),
		BusBackend:            getEnv("CHAT_BUS_BACKEND", BusBackendLocal),
		NotificationThreshold: threshold,
		NotificationInterval:  getEnvAsDuration("CHAT_NOTIFICATION_INTERVAL", threshold),
		NotificationLockTTL:   getEnvAsDuration("CHAT_NOTIFICATION_LOCK_TTL", time.Minute),
	}
}
