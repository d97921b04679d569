// Package config загружает конфигурацию сервиса майнинга из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"miner"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"arx_miner"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// Пустое значение — пишем только в stdout
	AppLogFile  string `envconfig:"APP_LOG_FILE" default:""`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- HTTP ---
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	// Секрет HS256 для bearer-токенов. Выпуск токенов — не наша забота.
	AuthJWTSecret string `envconfig:"AUTH_JWT_SECRET" required:"true"`

	// --- Mining ---
	MiningBaseRate      float64       `envconfig:"MINING_BASE_RATE" default:"10"`
	MiningRateCap       float64       `envconfig:"MINING_RATE_CAP" default:"60"`
	MiningMaxBoostPct   float64       `envconfig:"MINING_MAX_BOOST_PCT" default:"500"`
	MiningStreakCapDays int           `envconfig:"MINING_STREAK_CAP_DAYS" default:"30"`
	MiningMaxSession    time.Duration `envconfig:"MINING_MAX_SESSION" default:"8h"`
	// Тик нужен только для плавности; начисление всегда считается от started_at
	MiningTickInterval time.Duration `envconfig:"MINING_TICK_INTERVAL" default:"500ms"`
	BoostPollInterval  time.Duration `envconfig:"BOOST_POLL_INTERVAL" default:"5s"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Ops alerts (Telegram) ---
	// Если токен пустой — алерты только в лог
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	OpsChatID        int64  `envconfig:"OPS_CHAT_ID" default:"0"`

	// --- Cron ---
	CronSweepSpec string `envconfig:"CRON_SWEEP_SPEC" default:"*/15 * * * *"`
	CronTimezone  string `envconfig:"CRON_TIMEZONE" default:"UTC"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.MiningBaseRate <= 0 {
		return fmt.Errorf("MINING_BASE_RATE должен быть > 0")
	}
	if c.MiningRateCap < c.MiningBaseRate {
		return fmt.Errorf("MINING_RATE_CAP должен быть >= MINING_BASE_RATE")
	}
	if c.MiningMaxBoostPct < 0 {
		return fmt.Errorf("MINING_MAX_BOOST_PCT не может быть отрицательным")
	}
	if c.MiningStreakCapDays < 0 {
		return fmt.Errorf("MINING_STREAK_CAP_DAYS не может быть отрицательным")
	}
	if c.MiningMaxSession <= 0 {
		return fmt.Errorf("MINING_MAX_SESSION должен быть > 0")
	}
	if c.MiningTickInterval <= 0 {
		return fmt.Errorf("MINING_TICK_INTERVAL должен быть > 0")
	}
	if c.BoostPollInterval <= 0 {
		return fmt.Errorf("BOOST_POLL_INTERVAL должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	if c.TelegramBotToken != "" && c.OpsChatID == 0 {
		return fmt.Errorf("OPS_CHAT_ID обязателен, если задан TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// Location возвращает часовой пояс по имени, при ошибке — UTC.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
