package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Database  DatabaseConfig
	Mistral   MistralConfig
	Storage   StorageConfig
	OCR       OCRConfig
	Upload    UploadConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type AuthConfig struct {
	Issuer   string
	ClientID string
}

// GatewayConfig enables header-based auth when the API runs behind a
// reverse proxy doing ForwardAuth.
type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	SubmitPerHour int
	StatusPerMin  int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MistralConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type OCRConfig struct {
	TesseractPath string
	Language      string
	TessdataDir   string
	Timeout       time.Duration
}

type UploadConfig struct {
	MaxFileSize int64 // bytes
	MaxFiles    int
}

type WorkerConfig struct {
	Enabled     bool
	Queue       string
	Concurrency int
	MaxRetry    int
	JobTimeout  time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("MISTRAL_API_KEY")
	readSecret("DATABASE_URL")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("auth.issuer", "AUTH_ISSUER")
	_ = viper.BindEnv("auth.client_id", "AUTH_CLIENT_ID")
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	_ = viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	_ = viper.BindEnv("mistral.api_key", "MISTRAL_API_KEY")
	_ = viper.BindEnv("mistral.base_url", "MISTRAL_BASE_URL")
	_ = viper.BindEnv("mistral.model", "MISTRAL_MODEL")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("ocr.tesseract_path", "OCR_TESSERACT_PATH")
	_ = viper.BindEnv("ocr.language", "OCR_LANGUAGE")
	_ = viper.BindEnv("ocr.tessdata_dir", "OCR_TESSDATA_DIR")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("worker.enabled", "WORKER_ENABLED")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("worker.max_retry", "WORKER_MAX_RETRY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.submit_per_hour", 20)
	viper.SetDefault("ratelimit.status_per_min", 120)

	// Database defaults
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", "30m")

	// Mistral defaults
	viper.SetDefault("mistral.base_url", "https://api.mistral.ai/v1")
	viper.SetDefault("mistral.model", "mistral-large-latest")

	// Storage defaults
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("storage.bucket_name", "corrections")

	// OCR defaults
	viper.SetDefault("ocr.tesseract_path", "tesseract")
	viper.SetDefault("ocr.language", "fra")
	viper.SetDefault("ocr.timeout", "60s")

	// Upload defaults
	viper.SetDefault("upload.max_file_size", 10*1024*1024)
	viper.SetDefault("upload.max_files", 10)

	// Worker defaults
	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.queue", "corrections")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.max_retry", 3)
	viper.SetDefault("worker.job_timeout", "5m")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Auth: AuthConfig{
			Issuer:   viper.GetString("auth.issuer"),
			ClientID: viper.GetString("auth.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
			StatusPerMin:  viper.GetInt("ratelimit.status_per_min"),
		},
		Database: DatabaseConfig{
			URL:             viper.GetString("database.url"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Mistral: MistralConfig{
			APIKey:  viper.GetString("mistral.api_key"),
			BaseURL: viper.GetString("mistral.base_url"),
			Model:   viper.GetString("mistral.model"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		OCR: OCRConfig{
			TesseractPath: viper.GetString("ocr.tesseract_path"),
			Language:      viper.GetString("ocr.language"),
			TessdataDir:   viper.GetString("ocr.tessdata_dir"),
			Timeout:       viper.GetDuration("ocr.timeout"),
		},
		Upload: UploadConfig{
			MaxFileSize: viper.GetInt64("upload.max_file_size"),
			MaxFiles:    viper.GetInt("upload.max_files"),
		},
		Worker: WorkerConfig{
			Enabled:     viper.GetBool("worker.enabled"),
			Queue:       viper.GetString("worker.queue"),
			Concurrency: viper.GetInt("worker.concurrency"),
			MaxRetry:    viper.GetInt("worker.max_retry"),
			JobTimeout:  viper.GetDuration("worker.job_timeout"),
		},
	}

	return cfg, nil
}
