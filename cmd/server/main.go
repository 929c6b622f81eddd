package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"riskhub/internal/api"
	"riskhub/internal/bus"
	"riskhub/internal/config"
	"riskhub/internal/dispatcher"
	"riskhub/internal/executor"
	"riskhub/internal/pipeline"
	"riskhub/internal/repository"
	"riskhub/internal/risk"
	"riskhub/internal/websocket"
	"riskhub/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		zlog.Fatal("подключение к базе данных не удалось", zap.Error(err))
	}
	defer db.Close()
	zlog.Info("база данных подключена", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	alertRepo := repository.NewAlertRepository(db)

	// Контекст жизни фоновых компонентов
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Шина событий - центр всей координации
	eventBus := bus.New(cfg.Bus, zlog.Named("bus"))
	go eventBus.Run(ctx)

	// Пайплайн обогащения сигналов
	enrichment := pipeline.New(cfg.Enrichment, eventBus, zlog.Named("pipeline"))
	enrichment.Start()

	// Риск-движок
	riskEngine := risk.New(cfg.Risk, eventBus, zlog.Named("risk"))
	riskEngine.Start()
	go riskEngine.Run(ctx)

	// Шлюз исполнения действий
	gate := executor.New(cfg.Executor, eventBus, zlog.Named("executor"))
	gate.Start()

	// WebSocket hub для push в UI
	hub := websocket.NewHub(zlog.Named("websocket"))
	go hub.Run(ctx)

	// Диспетчер алертов: шлюз пинит алерты с идущим исполнением
	disp := dispatcher.New(cfg.Alerts, eventBus, alertRepo, hub, gate, zlog.Named("dispatcher"))
	disp.Start()
	if err := disp.Restore(context.Background()); err != nil {
		// Тёплый рестарт не критичен: продолжаем с пустым множеством
		zlog.Error("восстановление алертов не удалось", zap.Error(err))
	}
	go disp.Run(ctx)

	// Новый подписчик stream получает backlog активных алертов
	hub.SetBacklogProvider(disp.ActiveBacklog)

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		Alerts:   disp,
		Executor: gate,
		Risk:     riskEngine,
		History:  eventBus.History(),
		Hub:      hub,
		Log:      zlog.Named("http"),
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		zlog.Info("сервер запускается", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				zlog.Fatal("сервер упал", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Fatal("сервер упал", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("остановка сервера")

	// Сначала перестаём принимать запросы, затем гасим фон
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("принудительная остановка сервера", zap.Error(err))
	}

	cancel()
	zlog.Info("сервер остановлен")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
