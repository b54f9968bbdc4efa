package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	OCR      OCRConfig      `yaml:"ocr"`
	Models   ModelsConfig   `yaml:"models"`
	Weather  WeatherConfig  `yaml:"weather"`
	LLM      LLMConfig      `yaml:"llm"`
	Watch    WatchConfig    `yaml:"watch"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds the inference journal connection settings.
// A DSN starting with postgres:// or postgresql:// selects Postgres, anything else is a SQLite path or URI.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract        string `yaml:"tesseract"`
	Language         string `yaml:"language"`
	TessdataDir      string `yaml:"tessdata_dir"`
	PageSegModes     []int  `yaml:"page_seg_modes"`
	ArtifactCacheDir string `yaml:"artifact_cache_dir"`
}

// ModelsConfig points at the pre-trained predictor artifacts.
type ModelsConfig struct {
	YieldModelPath     string        `yaml:"yield_model_path"`
	DiseaseClassesPath string        `yaml:"disease_classes_path"`
	DiseaseServingURL  string        `yaml:"disease_serving_url"`
	DiseaseModelName   string        `yaml:"disease_model_name"`
	DiseaseTimeout     time.Duration `yaml:"disease_timeout"`
}

// WeatherConfig holds the OpenWeatherMap client settings.
type WeatherConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
	MaxRetries      int           `yaml:"max_retries"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WatchConfig configures watch-folder soil scanning.
type WatchConfig struct {
	Dirs           []string      `yaml:"dirs"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	Debounce       time.Duration `yaml:"debounce"`
	InitialScan    bool          `yaml:"initial_scan"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             "file:advisor.db?_pragma=busy_timeout(5000)",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			GRPCAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		OCR: OCRConfig{
			Tesseract:        "tesseract",
			Language:         "eng",
			PageSegModes:     []int{6, 4},
			ArtifactCacheDir: os.TempDir(),
		},
		Models: ModelsConfig{
			YieldModelPath:     "models/yield_model.json",
			DiseaseClassesPath: "models/classes.json",
			DiseaseModelName:   "plant_disease",
			DiseaseTimeout:     20 * time.Second,
		},
		Weather: WeatherConfig{
			BaseURL:         "https://api.openweathermap.org",
			Timeout:         10 * time.Second,
			CacheTTL:        30 * time.Minute,
			BreakerFailures: 3,
			BreakerOpen:     30 * time.Second,
			MaxRetries:      2,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			Temperature: 0.4,
			Timeout:     30 * time.Second,
		},
		Watch: WatchConfig{
			Workers:        2,
			QueueSize:      64,
			ProcessTimeout: 2 * time.Minute,
			Debounce:       500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from an optional .env file, an optional YAML file
// named by ADVISOR_CONFIG, and finally environment variables (highest precedence).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("ADVISOR_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError(CodeConfig, "cannot read config file", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError(CodeConfig, "invalid config file", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.Language = getEnv("TESSERACT_LANG", c.OCR.Language)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.PageSegModes = getEnvAsIntSlice("TESSERACT_PSM", c.OCR.PageSegModes)
	c.OCR.ArtifactCacheDir = getEnv("ARTIFACT_CACHE_DIR", c.OCR.ArtifactCacheDir)

	c.Models.YieldModelPath = getEnv("YIELD_MODEL_PATH", c.Models.YieldModelPath)
	c.Models.DiseaseClassesPath = getEnv("DISEASE_CLASSES_PATH", c.Models.DiseaseClassesPath)
	c.Models.DiseaseServingURL = getEnv("DISEASE_SERVING_URL", c.Models.DiseaseServingURL)
	c.Models.DiseaseModelName = getEnv("DISEASE_MODEL_NAME", c.Models.DiseaseModelName)
	c.Models.DiseaseTimeout = getEnvAsDuration("DISEASE_TIMEOUT", c.Models.DiseaseTimeout)

	c.Weather.APIKey = getEnv("OPENWEATHER_API_KEY", c.Weather.APIKey)
	c.Weather.BaseURL = getEnv("OPENWEATHER_BASE_URL", c.Weather.BaseURL)
	c.Weather.Timeout = getEnvAsDuration("OPENWEATHER_TIMEOUT", c.Weather.Timeout)
	c.Weather.CacheTTL = getEnvAsDuration("WEATHER_CACHE_TTL", c.Weather.CacheTTL)
	c.Weather.BreakerFailures = getEnvAsInt("WEATHER_BREAKER_FAILURES", c.Weather.BreakerFailures)
	c.Weather.BreakerOpen = getEnvAsDuration("WEATHER_BREAKER_OPEN", c.Weather.BreakerOpen)
	c.Weather.MaxRetries = getEnvAsInt("WEATHER_MAX_RETRIES", c.Weather.MaxRetries)

	c.LLM.Model = getEnv("GEMINI_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("GEMINI_API_KEY", c.LLM.APIKey)
	c.LLM.Temperature = getEnvAsFloat32("GEMINI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("GEMINI_TIMEOUT", c.LLM.Timeout)

	c.Watch.Dirs = getEnvAsList("WATCH_DIRS", c.Watch.Dirs)
	c.Watch.Workers = getEnvAsInt("WATCH_WORKERS", c.Watch.Workers)
	c.Watch.QueueSize = getEnvAsInt("WATCH_QUEUE_SIZE", c.Watch.QueueSize)
	c.Watch.ProcessTimeout = getEnvAsDuration("WATCH_PROCESS_TIMEOUT", c.Watch.ProcessTimeout)
	c.Watch.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", c.Watch.Debounce)
	c.Watch.InitialScan = getEnvAsBool("WATCH_INITIAL_SCAN", c.Watch.InitialScan)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsIntSlice(key string, defaultValue []int) []int {
	items := getEnvAsList(key, nil)
	if len(items) == 0 {
		return defaultValue
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		n, err := strconv.Atoi(it)
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR or GRPC_ADDR is required", ErrInvalidInput)
	}
	if len(c.OCR.PageSegModes) == 0 {
		return NewAppError(CodeConfig, "TESSERACT_PSM needs at least one mode", ErrInvalidInput)
	}
	for _, psm := range c.OCR.PageSegModes {
		if psm < 0 || psm > 13 {
			return NewAppError(CodeConfig, fmt.Sprintf("invalid page segmentation mode %d", psm), ErrInvalidInput)
		}
	}
	if c.Watch.Workers <= 0 {
		return NewAppError(CodeConfig, "WATCH_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Weather.CacheTTL < 0 {
		return NewAppError(CodeConfig, "WEATHER_CACHE_TTL must not be negative", ErrInvalidInput)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return NewAppError(CodeConfig, "LOG_FORMAT must be text or json", ErrInvalidInput)
	}
	return nil
}
