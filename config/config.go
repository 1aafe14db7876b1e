package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort       string
	PublicBaseURL string
	// Storage layout
	DataDir     string
	LinksFile   string
	UploadsRoot string
	// Upload policy
	MaxFileSizeMB           int
	MaxFilesPerRequest      int
	AllowedMimeTypes        []string
	IntakeMaxPerSlugPerHour int
	// HTTP hardening
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Operator token secret; empty leaves link management open
	OperatorSecret string
	// Gin framework configuration
	GinMode string
	GinPath string
	// SMTP for intake notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	NotifyTo     string
	// Redis for the intake throttle; empty host falls back to memory
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Kafka intake events; no brokers disables publishing
	KafkaBrokers []string
	KafkaTopic   string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// DefaultMimeTypes is the upload allow-list used when none is configured.
var DefaultMimeTypes = []string{
	"image/jpeg", "image/png", "image/webp", "image/gif",
	"application/pdf", "image/heic", "image/heif",
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: .env -> config/config.json -> defaults -> environment variable overrides.
	// godotenv never overrides variables already present in the environment.
	_ = godotenv.Load()

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tests and embedding programs.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

// Defaults returns a configuration with every default applied.
func Defaults() AppConfig {
	var c AppConfig
	applyDefaults(&c)
	return c
}

// Validate reports values the server cannot run with.
func (c AppConfig) Validate() error {
	var errs []error
	if c.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("MaxFileSizeMB must be positive, got %d", c.MaxFileSizeMB))
	}
	if c.MaxFilesPerRequest <= 0 {
		errs = append(errs, fmt.Errorf("MaxFilesPerRequest must be positive, got %d", c.MaxFilesPerRequest))
	}
	if len(c.AllowedMimeTypes) == 0 {
		errs = append(errs, errors.New("AllowedMimeTypes must not be empty"))
	}
	if strings.TrimSpace(c.LinksFile) == "" || strings.TrimSpace(c.UploadsRoot) == "" {
		errs = append(errs, errors.New("storage paths must be set"))
	}
	return errors.Join(errs...)
}

// MaxFileBytes is the per-file ceiling in bytes.
func (c AppConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped sections from path into out. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.PublicBaseURL = getString(app, "PublicBaseURL")
		out.OperatorSecret = getString(app, "OperatorSecret")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		out.DataDir = getString(st, "DataDir")
		out.LinksFile = getString(st, "LinksFile")
		out.UploadsRoot = getString(st, "UploadsRoot")
	}

	if up, ok := raw["upload"].(map[string]any); ok {
		out.MaxFileSizeMB = getInt(up, "MaxFileSizeMB")
		out.MaxFilesPerRequest = getInt(up, "MaxFilesPerRequest")
		out.IntakeMaxPerSlugPerHour = getInt(up, "IntakeMaxPerSlugPerHour")
		if list := getStringSlice(up, "AllowedMimeTypes"); len(list) > 0 {
			out.AllowedMimeTypes = list
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if kf, ok := raw["kafka"].(map[string]any); ok {
		out.KafkaBrokers = getStringSlice(kf, "Brokers")
		out.KafkaTopic = getString(kf, "Topic")
	}

	if sm, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
		out.NotifyTo = getString(sm, "NotifyTo")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:" + c.AppPort
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LinksFile == "" {
		c.LinksFile = filepath.Join(c.DataDir, "links.json")
	}
	if c.UploadsRoot == "" {
		c.UploadsRoot = filepath.Join(c.DataDir, "uploads")
	}
	if c.MaxFileSizeMB == 0 {
		c.MaxFileSizeMB = 15
	}
	if c.MaxFilesPerRequest == 0 {
		c.MaxFilesPerRequest = 10
	}
	if len(c.AllowedMimeTypes) == 0 {
		c.AllowedMimeTypes = append([]string(nil), DefaultMimeTypes...)
	}
	if c.IntakeMaxPerSlugPerHour == 0 {
		c.IntakeMaxPerSlugPerHour = 20
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = "docintake.intake-received"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("PORT", ""); v != "" && os.Getenv("APP_PORT") == "" {
		c.AppPort = v
	}
	if v := getEnv("PUBLIC_BASE_URL", ""); v != "" {
		c.PublicBaseURL = v
	}
	if v := getEnv("DATA_DIR", ""); v != "" {
		c.DataDir = v
	}
	if v := getEnv("LINKS_FILE", ""); v != "" {
		c.LinksFile = v
	}
	if v := getEnv("UPLOADS_ROOT", ""); v != "" {
		c.UploadsRoot = v
	}
	if v := getEnv("MAX_FILE_SIZE_MB", ""); v != "" {
		c.MaxFileSizeMB = mustParseInt(v)
	}
	if v := getEnv("MAX_FILES_PER_REQUEST", ""); v != "" {
		c.MaxFilesPerRequest = mustParseInt(v)
	}
	if v := getEnv("ALLOWED_MIME_TYPES", ""); v != "" {
		c.AllowedMimeTypes = readListEnv("ALLOWED_MIME_TYPES", c.AllowedMimeTypes)
	}
	if v := getEnv("INTAKE_MAX_PER_SLUG_PER_HOUR", ""); v != "" {
		c.IntakeMaxPerSlugPerHour = mustParseInt(v)
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("OPERATOR_SECRET", ""); v != "" {
		c.OperatorSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("SMTP_HOST", ""); v != "" {
		c.SMTPHost = v
	}
	if v := getEnv("SMTP_PORT", ""); v != "" {
		c.SMTPPort = mustParseInt(v)
	}
	if v := getEnv("SMTP_USERNAME", getEnv("SMTP_USER", "")); v != "" {
		c.SMTPUsername = v
	}
	if v := getEnv("SMTP_PASSWORD", getEnv("SMTP_PASS", "")); v != "" {
		c.SMTPPassword = v
	}
	if v := getEnv("SMTP_FROM", ""); v != "" {
		c.SMTPFrom = v
	}
	if v := getEnv("SMTP_FROM_NAME", ""); v != "" {
		c.SMTPFromName = v
	}
	if v := getEnv("SMTP_TLS", ""); v != "" {
		c.SMTPTLS = v == "true"
	}
	if v := getEnv("NOTIFY_TO", getEnv("TO_EMAIL", "")); v != "" {
		c.NotifyTo = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		c.KafkaBrokers = readListEnv("KAFKA_BROKERS", c.KafkaBrokers)
	}
	if v := getEnv("KAFKA_TOPIC", ""); v != "" {
		c.KafkaTopic = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaults
	}
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
