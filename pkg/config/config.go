package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Analysis   AnalysisConfig
	History    HistoryConfig
	Policy     PolicyConfig
	Upload     UploadConfig
	Redis      RedisConfig
	S3         S3Config
	Dynamo     DynamoConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	Prometheus PrometheusConfig
	TrendWatch TrendWatchConfig
	Security   SecurityConfig
	LogLevel   string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// AnalysisConfig переопределяет числовые параметры конвейера анализа.
type AnalysisConfig struct {
	DefaultRate         float64
	DelayMultiplier     float64
	BreachMultiplier    float64
	RiskSignalThreshold float64
}

// HistoryConfig выбирает хранилище истории снимков.
type HistoryConfig struct {
	Backend   string // file | postgres
	Dir       string
	Retention int
}

type PolicyConfig struct {
	File string
}

type UploadConfig struct {
	MaxBytes           int64
	RateLimitPerMinute int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	URLMode         string
	PresignedTTL    time.Duration
}

type DynamoConfig struct {
	Enabled         bool
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
	Retention       time.Duration
}

type NATSConfig struct {
	Enabled    bool
	URL        string
	StreamName string
}

type CloudWatchConfig struct {
	MetricsEnabled  bool
	LogsEnabled     bool
	Namespace       string
	LogGroup        string
	LogStream       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	FlushInterval   time.Duration
}

type PrometheusConfig struct {
	Enabled bool
	Path    string
}

// TrendWatchConfig управляет периодической проверкой трендов по тенантам.
type TrendWatchConfig struct {
	Interval time.Duration
	Port     string
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	defaultRate, err := getEnvFloat("DEFAULT_RATE", 60)
	if err != nil {
		return nil, err
	}
	if defaultRate < 0 {
		return nil, fmt.Errorf("invalid DEFAULT_RATE: must be >= 0")
	}

	delayMultiplier, err := getEnvFloat("DELAY_MULTIPLIER", 1.5)
	if err != nil {
		return nil, err
	}

	breachMultiplier, err := getEnvFloat("BREACH_MULTIPLIER", 1.2)
	if err != nil {
		return nil, err
	}

	riskThreshold, err := getEnvFloat("RISK_SIGNAL_THRESHOLD", 1000)
	if err != nil {
		return nil, err
	}

	retention, err := getEnvInt("HISTORY_RETENTION", 0)
	if err != nil {
		return nil, err
	}

	maxUploadMB, err := getEnvInt("UPLOAD_MAX_MB", 20)
	if err != nil {
		return nil, err
	}

	rateLimitPerMinute, err := getEnvInt("UPLOAD_RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	redisTTL, err := parseDuration(getEnv("REDIS_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_TTL: %w", err)
	}

	presignedTTL, err := parseDuration(getEnv("S3_PRESIGNED_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid S3_PRESIGNED_TTL: %w", err)
	}

	dynamoRetention, err := parseDuration(getEnv("DYNAMODB_RETENTION", "0s"))
	if err != nil || dynamoRetention < 0 {
		return nil, fmt.Errorf("invalid DYNAMODB_RETENTION: %q", getEnv("DYNAMODB_RETENTION", "0s"))
	}

	flushInterval, err := parseDuration(getEnv("CLOUDWATCH_FLUSH_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_FLUSH_INTERVAL: %w", err)
	}

	trendInterval, err := parseDuration(getEnv("TREND_WATCH_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TREND_WATCH_INTERVAL: %w", err)
	}

	awsRegion := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "process_detector"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Analysis: AnalysisConfig{
			DefaultRate:         defaultRate,
			DelayMultiplier:     delayMultiplier,
			BreachMultiplier:    breachMultiplier,
			RiskSignalThreshold: riskThreshold,
		},
		History: HistoryConfig{
			Backend:   getEnv("HISTORY_BACKEND", "file"),
			Dir:       getEnv("HISTORY_DIR", "data/history"),
			Retention: retention,
		},
		Policy: PolicyConfig{
			File: getEnv("POLICY_FILE", ""),
		},
		Upload: UploadConfig{
			MaxBytes:           int64(maxUploadMB) * 1024 * 1024,
			RateLimitPerMinute: rateLimitPerMinute,
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			TTL:      redisTTL,
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "ru-central1"),
			Endpoint:        getEnv("S3_ENDPOINT", "https://storage.yandexcloud.net"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "reports"),
			URLMode:         getEnv("S3_URL_MODE", "presigned"),
			PresignedTTL:    presignedTTL,
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMODB_ENABLED", false),
			TableName:       getEnv("DYNAMODB_TABLE", "process-detector-reports"),
			Region:          getEnv("DYNAMODB_REGION", awsRegion),
			Endpoint:        getEnv("DYNAMODB_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMODB_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMODB_SECRET_ACCESS_KEY", ""),
			StrongReads:     getEnvBool("DYNAMODB_STRONG_READS", false),
			Retention:       dynamoRetention,
		},
		NATS: NATSConfig{
			Enabled:    getEnvBool("NATS_ENABLED", false),
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName: getEnv("NATS_STREAM", "PROCESS"),
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:  getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:     getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "ProcessDetector/SLA"),
			LogGroup:        getEnv("CLOUDWATCH_LOG_GROUP", "/process-detector/api"),
			LogStream:       getEnv("CLOUDWATCH_LOG_STREAM", hostname()),
			Region:          getEnv("CLOUDWATCH_REGION", awsRegion),
			Endpoint:        getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			FlushInterval:   flushInterval,
		},
		Prometheus: PrometheusConfig{
			Enabled: getEnvBool("PROMETHEUS_ENABLED", true),
			Path:    getEnv("PROMETHEUS_PATH", "/metrics"),
		},
		TrendWatch: TrendWatchConfig{
			Interval: trendInterval,
			Port:     getEnv("TREND_WATCH_PORT", "8090"),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Security.AuthEnabled && cfg.Security.AuthToken == "" {
		return nil, fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}

	switch cfg.History.Backend {
	case "file", "postgres":
	default:
		return nil, fmt.Errorf("invalid HISTORY_BACKEND: %q", cfg.History.Backend)
	}

	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	current := ""

	for _, r := range raw {
		if r == ',' {
			if current != "" {
				items = append(items, current)
				current = ""
			}
			continue
		}
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			current += string(r)
		}
	}

	if current != "" {
		items = append(items, current)
	}

	return items
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "process-detector"
	}
	return name
}
