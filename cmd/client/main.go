package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"improv-client/internal/config"
	"improv-client/internal/countdown"
	"improv-client/internal/logger"
	"improv-client/internal/narrative"
	"improv-client/internal/service"
	"improv-client/internal/session"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск игрового клиента...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// Session-хранилище: Redis, если задан адрес, иначе память процесса
	repo := session.NewMemoryRepository()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		defer redisClient.Close()
		zapLogger.Info("Успешное подключение к Redis", zap.String("addr", cfg.RedisAddr))
		repo = session.NewRedisRepository(redisClient, cfg.SessionTTL, zapLogger)
	}

	manager := session.NewManager(repo, zapLogger)
	client := narrative.NewHTTPClient(cfg.NarrativeURL, zapLogger)

	game := service.NewGameService(service.Config{
		SourceLanguage: cfg.SourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
		Countdown: countdown.Config{
			FirstBudget:  cfg.FirstRoundBudget,
			SteadyBudget: cfg.SteadyRoundBudget,
			MaxRounds:    cfg.MaxRounds,
		},
	}, manager, client, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID, err := game.NewSession(ctx)
	if err != nil {
		zapLogger.Fatal("Не удалось инициализировать сессию", zap.Error(err))
	}
	zapLogger.Info("Сессия готова", zap.String("session_id", sessionID))

	// Ядро готово; интеграционный слой (UI) подключает game и manager.
	// Здесь клиент живет до сигнала завершения, периодически сохраняя сессию.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Завершение работы, сохранение сессии...")
	if err := manager.Save(context.Background()); err != nil {
		zapLogger.Warn("Сессия не сохранена", zap.Error(err))
	}
	game.StopThreeThings()
	zapLogger.Info("Клиент остановлен")
}
