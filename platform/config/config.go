// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetEventsRateLimit() float64
	GetEventsRateBurst() int
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// WhatsAppConfig provides settings for the WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
	IsWhatsAppEnabled() bool
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// MessagingConfig provides settings shared by all message senders.
type MessagingConfig interface {
	GetMessageTemplatesFile() string
}

// AutomationConfig provides settings for the trigger dispatcher and action executor.
type AutomationConfig interface {
	GetActionTimeout() time.Duration
	GetAssignmentCursorBackend() string
	GetAutomationLogRetention() time.Duration
}

// ScoringConfig provides settings for the scoring engine.
type ScoringConfig interface {
	GetScoringRatingsFile() string
	GetScoringBulkConcurrency() int
	GetScoringOnEvents() bool
	GetScoringSyncLimit() int
	GetScoringCron() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	DatabaseMaxConns        int
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	EventsRateLimit         float64
	EventsRateBurst         int
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	WhatsAppURL             string
	WhatsAppKey             string
	WhatsAppDeviceID        string
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	EmailFromName           string
	EmailFromAddress        string
	MessageTemplatesFile    string
	ActionTimeout           time.Duration
	AssignmentCursorBackend string
	AutomationLogRetention  time.Duration
	ScoringRatingsFile      string
	ScoringBulkConcurrency  int
	ScoringOnEvents         bool
	ScoringSyncLimit        int
	ScoringCron             string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string  { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string         { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool       { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string    { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool     { return c.CORSAllowCreds }
func (c *Config) GetEventsRateLimit() float64 { return c.EventsRateLimit }
func (c *Config) GetEventsRateBurst() int     { return c.EventsRateBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }
func (c *Config) IsWhatsAppEnabled() bool     { return c.WhatsAppURL != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.SMTPHost != "" }

// MessagingConfig implementation
func (c *Config) GetMessageTemplatesFile() string { return c.MessageTemplatesFile }

// AutomationConfig implementation
func (c *Config) GetActionTimeout() time.Duration          { return c.ActionTimeout }
func (c *Config) GetAssignmentCursorBackend() string       { return c.AssignmentCursorBackend }
func (c *Config) GetAutomationLogRetention() time.Duration { return c.AutomationLogRetention }

// ScoringConfig implementation
func (c *Config) GetScoringRatingsFile() string  { return c.ScoringRatingsFile }
func (c *Config) GetScoringBulkConcurrency() int { return c.ScoringBulkConcurrency }
func (c *Config) GetScoringOnEvents() bool       { return c.ScoringOnEvents }
func (c *Config) GetScoringSyncLimit() int       { return c.ScoringSyncLimit }
func (c *Config) GetScoringCron() string         { return c.ScoringCron }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:        mustInt(getEnv("DATABASE_MAX_CONNS", "25")),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		EventsRateLimit:         mustFloat(getEnv("EVENTS_RATE_LIMIT", "20")),
		EventsRateBurst:         mustInt(getEnv("EVENTS_RATE_BURST", "40")),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		WhatsAppURL:             getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:             getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:        getEnv("WHATSAPP_DEVICE_ID", ""),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		EmailFromName:           getEnv("EMAIL_FROM_NAME", "Sales"),
		EmailFromAddress:        getEnv("EMAIL_FROM_ADDRESS", ""),
		MessageTemplatesFile:    getEnv("MESSAGE_TEMPLATES_FILE", ""),
		ActionTimeout:           mustDuration(getEnv("AUTOMATION_ACTION_TIMEOUT", "10s")),
		AssignmentCursorBackend: strings.ToLower(getEnv("ASSIGNMENT_CURSOR_BACKEND", "postgres")),
		AutomationLogRetention:  mustDuration(getEnv("AUTOMATION_LOG_RETENTION", "2160h")),
		ScoringRatingsFile:      getEnv("SCORING_RATINGS_FILE", ""),
		ScoringBulkConcurrency:  mustInt(getEnv("SCORING_BULK_CONCURRENCY", "8")),
		ScoringOnEvents:         strings.EqualFold(getEnv("SCORING_ON_EVENTS", "true"), "true"),
		ScoringSyncLimit:        mustInt(getEnv("SCORING_SYNC_LIMIT", "200")),
		ScoringCron:             getEnv("SCORING_CRON", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.IsEmailEnabled() && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when SMTP_HOST is set")
	}
	switch cfg.AssignmentCursorBackend {
	case "postgres", "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when ASSIGNMENT_CURSOR_BACKEND is redis")
		}
	default:
		return nil, fmt.Errorf("ASSIGNMENT_CURSOR_BACKEND must be postgres, redis or memory")
	}
	if cfg.ActionTimeout <= 0 {
		return nil, fmt.Errorf("AUTOMATION_ACTION_TIMEOUT must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
