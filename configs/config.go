package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicBaseURL string
}

type Scheduler struct {
	SweepInterval  time.Duration
	TimerHorizon   time.Duration
	TimerBackend   string // memory, asynq
	ClaimTTL       time.Duration
	StallThreshold time.Duration
	RetryInterval  time.Duration
	Concurrency    int
}

type Media struct {
	WorkDir        string
	MaxSourceBytes int64
	ChunkThreshold int64
	HardCeiling    int64
	TargetBytes    int64
	MinUsefulBytes int64
	StallTimeout   time.Duration
	AcquireTimeout time.Duration
	YtDlpPath      string
	FFmpegPath     string
	FFprobePath    string
}

type Upload struct {
	ChunkSize      int64
	PhaseTimeout   time.Duration
	PollInterval   time.Duration
	PollTimeout    time.Duration
	VerifyWindow   time.Duration
	PublishTimeout time.Duration
	GraphVersion   string
	RequestsPerSec float64
}

type Config struct {
	Port          string
	LogLevel      string
	StoreBackend  string // postgres, memory
	PostgresURI   string
	RedisURI      string
	RedisPassword string
	FrontendURL   string
	R2            R2
	SecretKey     string
	CookieName    string
	Scheduler     Scheduler
	Media         Media
	Upload        Upload
}

func LoadConfig() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StoreBackend:  getEnv("STORE_BACKEND", "postgres"),
		PostgresURI:   getEnv("POSTGRES_URI", ""),
		RedisURI:      getEnv("REDIS_URI", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", ""),
			PublicBaseURL: getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),
		Scheduler: Scheduler{
			SweepInterval:  getDuration("SWEEP_INTERVAL", 30*time.Second),
			TimerHorizon:   getDuration("TIMER_HORIZON", 24*time.Hour),
			TimerBackend:   getEnv("TIMER_BACKEND", "memory"),
			ClaimTTL:       getDuration("CLAIM_TTL", 75*time.Minute),
			StallThreshold: getDuration("STALL_THRESHOLD", 45*time.Minute),
			RetryInterval:  getDuration("RETRY_INTERVAL", 10*time.Minute),
			Concurrency:    int(getInt64("PUBLISH_CONCURRENCY", 10)),
		},
		Media: Media{
			WorkDir:        getEnv("MEDIA_WORK_DIR", os.TempDir()),
			MaxSourceBytes: getInt64("MEDIA_MAX_SOURCE_BYTES", 4<<30),
			ChunkThreshold: getInt64("MEDIA_CHUNK_THRESHOLD", 50<<20),
			HardCeiling:    getInt64("MEDIA_HARD_CEILING", 1<<30),
			TargetBytes:    getInt64("MEDIA_TARGET_BYTES", 900<<20),
			MinUsefulBytes: getInt64("MEDIA_MIN_USEFUL_BYTES", 1_000_000),
			StallTimeout:   getDuration("MEDIA_STALL_TIMEOUT", 45*time.Second),
			AcquireTimeout: getDuration("MEDIA_ACQUIRE_TIMEOUT", 20*time.Minute),
			YtDlpPath:      getEnv("YTDLP_PATH", "yt-dlp"),
			FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		},
		Upload: Upload{
			ChunkSize:      getInt64("UPLOAD_CHUNK_SIZE", 10<<20),
			PhaseTimeout:   getDuration("UPLOAD_PHASE_TIMEOUT", 5*time.Minute),
			PollInterval:   getDuration("PROCESSING_POLL_INTERVAL", 5*time.Second),
			PollTimeout:    getDuration("PROCESSING_POLL_TIMEOUT", 10*time.Minute),
			VerifyWindow:   getDuration("PUBLISH_VERIFY_WINDOW", 2*time.Minute),
			PublishTimeout: getDuration("PUBLISH_TIMEOUT", 60*time.Minute),
			GraphVersion:   getEnv("GRAPH_API_VERSION", "v19.0"),
			RequestsPerSec: float64(getInt64("PLATFORM_REQUESTS_PER_SEC", 5)),
		},
	}

	// The claim record must outlive the attempt it describes.
	if cfg.Scheduler.ClaimTTL < cfg.Upload.PublishTimeout {
		cfg.Scheduler.ClaimTTL = cfg.Upload.PublishTimeout + 15*time.Minute
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
