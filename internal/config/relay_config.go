package config

import "os"

// RelayConfig holds configuration for the outbox relay service.
// This is a minimal config that only includes what the relay needs.
type RelayConfig struct {
	DatabaseURL         string
	RabbitMQURL         string
	EnrollmentQueueName string
	LogLevel            string
	LogJSON             bool
}

func LoadRelayConfig() *RelayConfig {
	dbURL := os.Getenv("DB_CONNECTION_STRING")
	if dbURL == "" {
		panic("DB_CONNECTION_STRING environment variable is required")
	}

	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		panic("RABBITMQ_URL environment variable is required")
	}

	queueName := os.Getenv("ENROLLMENT_QUEUE_NAME")
	if queueName == "" {
		queueName = "unit-enrollments"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &RelayConfig{
		DatabaseURL:         dbURL,
		RabbitMQURL:         rabbitURL,
		EnrollmentQueueName: queueName,
		LogLevel:            logLevel,
		LogJSON:             os.Getenv("LOG_JSON") != "false",
	}
}
