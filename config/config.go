package config

import (
	"log"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	FFmpegPath string
	TempDir    string // base directory for per-job work directories

	// Pipeline tuning. Refreshed by the .env watcher; the pipeline takes a
	// snapshot via Current() at the start of each job. MaxConcurrentJobs and
	// SweepInterval are the exception: the queue reads them once at startup.
	DefaultTargetLUFS  float64       // fallback when no system voice files measured
	DuckVolume         float64       // background music attenuation (0..1)
	MinSegmentsForBed  int           // below this, skip background mixing entirely
	FetchTimeout       time.Duration // per-segment materialization bound, covers downloads
	AnalyzeTimeout     time.Duration // per-file loudness measurement bound
	NormalizeTimeout   time.Duration // per-file normalization bound
	AssembleTimeout    time.Duration // whole assembly step, fatal on expiry
	MaxConcurrentJobs  int           // worker slots for the queue
	SweepInterval      time.Duration // pending-job sweep period
	FailureCooldown    time.Duration // error-manifest retryAfter window
	DefaultSilenceSecs float64       // silence-like kinds without durationSeconds
	AudioBitrate       string        // e.g. "128k"
	PublicBaseURL      string        // prefix for published program URLs

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	ServerPort string

	// JWTSecret为空时跳过令牌校验，方便本地开发
	JWTSecret string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds into a Duration.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

var current atomic.Pointer[Config]

// Load loads configuration from environment variables (via .env file) or
// defaults, and publishes it as the current configuration.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		TempDir:    getEnv("WORK_DIR", os.TempDir()),

		DefaultTargetLUFS:  getEnvFloat("TARGET_LUFS", -16.0),
		DuckVolume:         getEnvFloat("DUCK_VOLUME", 0.18),
		MinSegmentsForBed:  getEnvInt("MIN_SEGMENTS_FOR_BED", 3),
		FetchTimeout:       getEnvSeconds("FETCH_TIMEOUT_SECONDS", 20*time.Second),
		AnalyzeTimeout:     getEnvSeconds("ANALYZE_TIMEOUT_SECONDS", 15*time.Second),
		NormalizeTimeout:   getEnvSeconds("NORMALIZE_TIMEOUT_SECONDS", 30*time.Second),
		AssembleTimeout:    getEnvSeconds("ASSEMBLE_TIMEOUT_SECONDS", 60*time.Second),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 1),
		SweepInterval:      getEnvSeconds("SWEEP_INTERVAL_SECONDS", 30*time.Second),
		FailureCooldown:    getEnvSeconds("FAILURE_COOLDOWN_SECONDS", 600*time.Second),
		DefaultSilenceSecs: getEnvFloat("DEFAULT_SILENCE_SECONDS", 2.0),
		AudioBitrate:       getEnv("AUDIO_BITRATE", "128k"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "storycast"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "storycast"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		ServerPort: getEnv("SERVER_PORT", "8080"),

		JWTSecret: os.Getenv("JWT_SECRET"),
	}

	current.Store(cfg)
	return cfg
}

// Reload re-reads the .env file with override semantics and republishes the
// configuration. Used by the watcher: plain Load would keep the stale values
// godotenv already exported into the process environment.
func Reload() *Config {
	if err := godotenv.Overload(); err != nil {
		log.Println("No .env file found on reload, keeping current environment.")
	}
	return Load()
}

// Current returns the most recently loaded configuration. Components that
// want hot-reloaded tunables read through here instead of holding a *Config.
func Current() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return Load()
}
