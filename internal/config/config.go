package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию игрового клиента.
type Config struct {
	// Настройки логирования
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"console"`

	// Адрес удаленного нарративного сервиса
	NarrativeURL string `envconfig:"NARRATIVE_SERVICE_URL" default:"http://localhost:5000/api"`

	// Языковая пара для перевода
	SourceLanguage string `envconfig:"SOURCE_LANGUAGE" default:"en"`
	TargetLanguage string `envconfig:"TARGET_LANGUAGE" default:"en"`

	// Настройки Redis для session-хранилища (пустой Addr = память процесса)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	// Окно захвата импровизации
	CaptureWindow time.Duration `envconfig:"CAPTURE_WINDOW" default:"10s"`
	FrameInterval time.Duration `envconfig:"FRAME_INTERVAL" default:"300ms"`

	// Таймеры режима "три вещи"
	FirstRoundBudget  time.Duration `envconfig:"FIRST_ROUND_BUDGET" default:"30s"`
	SteadyRoundBudget time.Duration `envconfig:"STEADY_ROUND_BUDGET" default:"15s"`
	MaxRounds         int           `envconfig:"MAX_ROUNDS" default:"20"`
}

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации клиента: %w", err)
	}

	log.Printf("Конфигурация клиента загружена:")
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  Narrative URL: %s", cfg.NarrativeURL)
	log.Printf("  Languages: %s -> %s", cfg.SourceLanguage, cfg.TargetLanguage)
	if cfg.RedisAddr != "" {
		log.Printf("  Redis: %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	} else {
		log.Printf("  Redis: отключен, используется память процесса")
	}
	log.Printf("  Capture: window %v, frame every %v", cfg.CaptureWindow, cfg.FrameInterval)
	log.Printf("  Rounds: first %v, steady %v, max %d", cfg.FirstRoundBudget, cfg.SteadyRoundBudget, cfg.MaxRounds)

	return &cfg, nil
}
