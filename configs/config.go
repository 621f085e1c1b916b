package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Auth      AuthConfig
	Admin     AdminConfig
	Job       JobConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// AuthConfig covers the device auth credentials and endpoints.
type AuthConfig struct {
	AppKey          string
	AppSecret       string
	DeviceAPIURL    string
	AnalyticsAPIURL string
	RequestTimeout  time.Duration
}

// AdminConfig covers the operator surface: login credentials and JWT signing.
type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt hash of the admin password
	JWTSecret    string
	TokenTTL     time.Duration
}

type JobConfig struct {
	MaxRetries     int
	GiveUpDelay    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type AnalyticsConfig struct {
	BatchSize        int
	UploadDelay      time.Duration
	UploadsPerPeriod int
	UploadPeriod     time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "engage_db"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			AppKey:          getEnvRequired("APP_KEY"),
			AppSecret:       getEnvRequired("APP_SECRET"),
			DeviceAPIURL:    getEnvRequired("DEVICE_API_URL"),
			AnalyticsAPIURL: getEnvRequired("ANALYTICS_API_URL"),
			RequestTimeout:  getDurationEnv("AUTH_REQUEST_TIMEOUT", 30*time.Second),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnvRequired("ADMIN_PASSWORD_HASH"),
			JWTSecret:    getEnvRequired("ADMIN_JWT_SECRET"),
			TokenTTL:     getDurationEnv("ADMIN_TOKEN_TTL", time.Hour),
		},
		Job: JobConfig{
			MaxRetries:     getIntEnv("JOB_MAX_RETRIES", 5),
			GiveUpDelay:    getDurationEnv("JOB_GIVE_UP_DELAY", time.Hour),
			InitialBackoff: getDurationEnv("JOB_INITIAL_BACKOFF", 30*time.Second),
			MaxBackoff:     getDurationEnv("JOB_MAX_BACKOFF", 10*time.Minute),
		},
		Analytics: AnalyticsConfig{
			BatchSize:        getIntEnv("ANALYTICS_BATCH_SIZE", 100),
			UploadDelay:      getDurationEnv("ANALYTICS_UPLOAD_DELAY", 10*time.Second),
			UploadsPerPeriod: getIntEnv("ANALYTICS_UPLOADS_PER_PERIOD", 1),
			UploadPeriod:     getDurationEnv("ANALYTICS_UPLOAD_PERIOD", time.Minute),
		},
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
