package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Bus        BusConfig
	Enrichment EnrichmentConfig
	Risk       RiskConfig
	Alerts     AlertConfig
	Executor   ExecutorConfig
	Logging    LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД (durable хранилище алертов)
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BusConfig - настройки шины событий
type BusConfig struct {
	// Размер буфера очереди на каждый уровень приоритета.
	// При переполнении Publish возвращает ErrBackpressure (fail fast).
	QueueSize int

	// Буфер доставки на подписчика. Медленный подписчик теряет события
	// (drop + метрика), но не останавливает шину.
	SubscriberBuffer int

	// Размер кольцевого буфера истории
	HistorySize int
}

// EnrichmentConfig - настройки пайплайна обогащения
type EnrichmentConfig struct {
	// Таймаут одной стадии. Стадия, не ответившая вовремя,
	// пропускается (аннотация опущена), сигнал НЕ отбрасывается.
	StageTimeout time.Duration

	// Окно дедупликации по id сигнала: повторная обработка того же id
	// внутри окна - no-op
	DedupWindow time.Duration

	// Максимальный возраст кэшированных данных коллабораторов
	AnnotationTTL time.Duration
}

// RiskWeights - веса компонент риск-скора
type RiskWeights struct {
	Exposure   float64 // доля экспозиции от equity
	Loss       float64 // нереализованный убыток
	Volatility float64 // волатильность инструмента
	Signal     float64 // риск от обогащённых сигналов
}

// RiskThresholds - границы классификации score → уровень.
// По умолчанию: low < 25, medium < 50, high < 75, critical >= 75
type RiskThresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// RiskConfig - настройки риск-движка
type RiskConfig struct {
	Weights    RiskWeights
	Thresholds RiskThresholds

	// Доля equity, при которой компонента экспозиции насыщается
	ExposureFullShare float64

	// Убыток (в долях от цены входа), при котором компонента убытка насыщается
	LossFullPct float64

	// Диапазон цен (в долях), при котором компонента волатильности насыщается
	VolatilityFullPct float64

	// Снимок старше этого возраста помечается is_stale
	SnapshotMaxAge time.Duration

	// Интервал периодической рассылки риска портфеля в UI
	PortfolioBroadcastFreq time.Duration
}

// AlertConfig - настройки диспетчера алертов
type AlertConfig struct {
	// Видимое окно list_active (most-recent-N)
	VisibleLimit int

	// Окно удержания dismissed алертов до сборки мусора
	Retention time.Duration

	// Интервал цикла сборки мусора
	GCInterval time.Duration

	// Отправлять ли backlog активных алертов новому подписчику stream
	ReplayBacklog bool
}

// ExecutorConfig - настройки шлюза исполнения
type ExecutorConfig struct {
	// Максимум retry после FAILED; дальше - терминальный ABANDONED
	MaxRetries int

	// Таймаут ожидания результата исполнения
	ResultTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "riskhub"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Bus: BusConfig{
			QueueSize:        getEnvAsInt("BUS_QUEUE_SIZE", 1024),
			SubscriberBuffer: getEnvAsInt("BUS_SUBSCRIBER_BUFFER", 256),
			HistorySize:      getEnvAsInt("BUS_HISTORY_SIZE", 1000),
		},
		Enrichment: EnrichmentConfig{
			StageTimeout:  getEnvAsDuration("ENRICH_STAGE_TIMEOUT", 200*time.Millisecond),
			DedupWindow:   getEnvAsDuration("ENRICH_DEDUP_WINDOW", 5*time.Minute),
			AnnotationTTL: getEnvAsDuration("ENRICH_ANNOTATION_TTL", 1*time.Minute),
		},
		Risk: RiskConfig{
			Weights: RiskWeights{
				Exposure:   getEnvAsFloat("RISK_WEIGHT_EXPOSURE", 30),
				Loss:       getEnvAsFloat("RISK_WEIGHT_LOSS", 30),
				Volatility: getEnvAsFloat("RISK_WEIGHT_VOLATILITY", 20),
				Signal:     getEnvAsFloat("RISK_WEIGHT_SIGNAL", 20),
			},
			Thresholds: RiskThresholds{
				Medium:   getEnvAsFloat("RISK_THRESHOLD_MEDIUM", 25),
				High:     getEnvAsFloat("RISK_THRESHOLD_HIGH", 50),
				Critical: getEnvAsFloat("RISK_THRESHOLD_CRITICAL", 75),
			},
			ExposureFullShare:      getEnvAsFloat("RISK_EXPOSURE_FULL_SHARE", 0.25),
			LossFullPct:            getEnvAsFloat("RISK_LOSS_FULL_PCT", 0.10),
			VolatilityFullPct:      getEnvAsFloat("RISK_VOLATILITY_FULL_PCT", 0.05),
			SnapshotMaxAge:         getEnvAsDuration("RISK_SNAPSHOT_MAX_AGE", 30*time.Second),
			PortfolioBroadcastFreq: getEnvAsDuration("RISK_PORTFOLIO_BROADCAST_FREQ", 5*time.Second),
		},
		Alerts: AlertConfig{
			VisibleLimit:  getEnvAsInt("ALERT_VISIBLE_LIMIT", 5),
			Retention:     getEnvAsDuration("ALERT_RETENTION", 1*time.Hour),
			GCInterval:    getEnvAsDuration("ALERT_GC_INTERVAL", 1*time.Minute),
			ReplayBacklog: getEnvAsBool("ALERT_REPLAY_BACKLOG", true),
		},
		Executor: ExecutorConfig{
			MaxRetries:    getEnvAsInt("EXEC_MAX_RETRIES", 3),
			ResultTimeout: getEnvAsDuration("EXEC_RESULT_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Bus.QueueSize < 1 {
		return fmt.Errorf("BUS_QUEUE_SIZE must be positive, got %d", c.Bus.QueueSize)
	}

	if c.Bus.SubscriberBuffer < 1 {
		return fmt.Errorf("BUS_SUBSCRIBER_BUFFER must be positive, got %d", c.Bus.SubscriberBuffer)
	}

	if c.Bus.HistorySize < 1 {
		return fmt.Errorf("BUS_HISTORY_SIZE must be positive, got %d", c.Bus.HistorySize)
	}

	if c.Enrichment.StageTimeout <= 0 {
		return fmt.Errorf("ENRICH_STAGE_TIMEOUT must be positive, got %v", c.Enrichment.StageTimeout)
	}

	if c.Enrichment.DedupWindow <= 0 {
		return fmt.Errorf("ENRICH_DEDUP_WINDOW must be positive, got %v", c.Enrichment.DedupWindow)
	}

	// Все нулевые веса сделали бы скор неопределённым
	w := c.Risk.Weights
	if w.Exposure < 0 || w.Loss < 0 || w.Volatility < 0 || w.Signal < 0 {
		return fmt.Errorf("risk weights cannot be negative")
	}
	if w.Exposure+w.Loss+w.Volatility+w.Signal == 0 {
		return fmt.Errorf("at least one risk weight must be positive")
	}

	th := c.Risk.Thresholds
	if !(0 < th.Medium && th.Medium < th.High && th.High < th.Critical && th.Critical <= 100) {
		return fmt.Errorf("risk thresholds must satisfy 0 < medium < high < critical <= 100, got %v/%v/%v",
			th.Medium, th.High, th.Critical)
	}

	if c.Alerts.VisibleLimit < 1 {
		return fmt.Errorf("ALERT_VISIBLE_LIMIT must be positive, got %d", c.Alerts.VisibleLimit)
	}

	if c.Alerts.Retention <= 0 {
		return fmt.Errorf("ALERT_RETENTION must be positive, got %v", c.Alerts.Retention)
	}

	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("EXEC_MAX_RETRIES cannot be negative, got %d", c.Executor.MaxRetries)
	}

	if c.Executor.MaxRetries > 10 {
		return fmt.Errorf("EXEC_MAX_RETRIES should not exceed 10, got %d", c.Executor.MaxRetries)
	}

	if c.Executor.ResultTimeout <= 0 {
		return fmt.Errorf("EXEC_RESULT_TIMEOUT must be positive, got %v", c.Executor.ResultTimeout)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логов)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
