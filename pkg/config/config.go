package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SHOPFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SHOPFLOW_DB_DSN"
	EnvDBHost = "SHOPFLOW_DB_HOST"
	EnvDBUser = "SHOPFLOW_DB_USER"
	EnvDBName = "SHOPFLOW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Auth         AuthConfig
	FeatureFlags FeatureFlagsConfig
	Payments     PaymentsConfig
	Messaging    MessagingConfig
	Worker       WorkerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPFLOW_DB_DSN"`
	Driver string `envconfig:"SHOPFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPFLOW_DB_USER"`
	LegacyPassword string `envconfig:"SHOPFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPFLOW_JWT_EXPIRATION_MINUTES" default:"720"`
}

// AuthConfig guards the token exchange used by the bot frontend.
type AuthConfig struct {
	BotAPIKey string `envconfig:"SHOPFLOW_BOT_API_KEY" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPFLOW_AUTO_MIGRATE" default:"false"`
}

// PaymentsConfig carries environment-level fallbacks for payment-channel
// orchestration. Settings-store overrides always win over these values.
type PaymentsConfig struct {
	CheckoutChannelID    string `envconfig:"SHOPFLOW_CHECKOUT_CHANNEL_ID"`
	CheckoutImageFileID  string `envconfig:"SHOPFLOW_CHECKOUT_IMAGE_FILE_ID"`
	InviteExpiryMinutes  int    `envconfig:"SHOPFLOW_INVITE_EXPIRY_MINUTES" default:"60"`
	DefaultPaymentMethod string `envconfig:"SHOPFLOW_PAYMENT_METHOD" default:"channel"`
}

type MessagingConfig struct {
	BaseURL  string        `envconfig:"SHOPFLOW_MESSAGING_BASE_URL"`
	BotToken string        `envconfig:"SHOPFLOW_MESSAGING_BOT_TOKEN"`
	Timeout  time.Duration `envconfig:"SHOPFLOW_MESSAGING_TIMEOUT" default:"10s"`
}

type WorkerConfig struct {
	Interval        time.Duration `envconfig:"SHOPFLOW_WORKER_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"SHOPFLOW_WORKER_LOCK_TTL" default:"5m"`
	CartIdleExpiry  time.Duration `envconfig:"SHOPFLOW_CART_IDLE_EXPIRY" default:"24h"`
	TaskBatchSize   int           `envconfig:"SHOPFLOW_WORKER_TASK_BATCH_SIZE" default:"50"`
	TaskMaxAttempts int           `envconfig:"SHOPFLOW_WORKER_TASK_MAX_ATTEMPTS" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
