// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path"`
	WebhookSecret           string `yaml:"webhook_secret"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Panel                   `yaml:"panel"`
	YooKassa                `yaml:"yookassa"`
	Telegram                `yaml:"telegram"`
	Lifecycle               `yaml:"lifecycle"`
	Reconciler              `yaml:"reconciler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для настройки подключения к брокеру сообщений
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay"`
}

// JWTToken структура для работы с jwt-токеном администратора
type JWTToken struct {
	JWTSecretKey   string        `yaml:"jwt_secret_key"`
	AdminSecretKey string        `yaml:"admin_secret_key"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
}

// Panel структура для подключения к панели Remnawave
type Panel struct {
	PanelBaseURL   string        `yaml:"panel_base_url"`
	PanelToken     string        `yaml:"panel_token"`
	PanelTimeout   time.Duration `yaml:"panel_timeout"`
	PanelRateLimit int           `yaml:"panel_rate_limit"` // запросов в секунду
}

// YooKassa структура для создания платежей у провайдера
type YooKassa struct {
	ShopID       string `yaml:"shop_id"`
	YooSecretKey string `yaml:"secret_key"`
	YooAPIURL    string `yaml:"api_url" env-default:"https://api.yookassa.ru/v3"`
	ReturnURL    string `yaml:"return_url"`
}

// Telegram структура для отправки уведомлений через Bot API
type Telegram struct {
	BotToken   string `yaml:"bot_token"`
	BotAPIBase string `yaml:"bot_api_base"`
}

// Lifecycle параметры движка жизненного цикла подписок
type Lifecycle struct {
	TrialDays             int           `yaml:"trial_days"`
	ExpiringSoonWindow    time.Duration `yaml:"expiring_soon_window"`
	ReferralBonusDays     int           `yaml:"referral_bonus_days"`
	DefaultExternalSquad  string        `yaml:"default_external_squad"`
	DefaultInternalSquads []string      `yaml:"default_internal_squads"`
}

// Reconciler параметры фонового цикла сверки состояния с панелью
type Reconciler struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseBackoff  time.Duration `yaml:"base_backoff"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// MustLoad функция для загрузки конфига, при ошибке завершает процесс
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
