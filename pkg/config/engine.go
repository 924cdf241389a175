package config

import "time"

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	Store       string // redis | postgres | memory
	MaxAttempts int
}

func loadQueueConfig() QueueConfig {
	return QueueConfig{
		Store:       getEnv("QUEUE_STORE", "redis"),
		MaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
	}
}

// SyncConfig configures the background reconciliation loop.
type SyncConfig struct {
	Interval       time.Duration
	OnlineDebounce time.Duration
	BatchWorkers   int
}

func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Interval:       getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		OnlineDebounce: getEnvDuration("SYNC_ONLINE_DEBOUNCE", 2*time.Second),
		BatchWorkers:   getEnvInt("SYNC_BATCH_WORKERS", 4),
	}
}

// RetryConfig configures the backoff schedule.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

func loadRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BaseDelay:         getEnvDuration("RETRY_BASE_DELAY", time.Second),
		MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 5*time.Minute),
		BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
		Jitter:            getEnvBool("RETRY_JITTER", true),
	}
}

// DedupConfig configures content hashing.
type DedupConfig struct {
	IgnoreFields       []string
	IncludeAttachments bool
}

func loadDedupConfig() DedupConfig {
	return DedupConfig{
		IgnoreFields:       getEnvStringSlice("DEDUP_IGNORE_FIELDS", nil),
		IncludeAttachments: getEnvBool("DEDUP_INCLUDE_ATTACHMENTS", true),
	}
}

// StorageConfig configures quota accounting and cleanup.
type StorageConfig struct {
	TotalBytes          int64
	ThresholdPercentage float64
	MaxItems            int
	MaxAge              time.Duration
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		TotalBytes:          getEnvInt64("STORAGE_TOTAL_BYTES", 512<<20),
		ThresholdPercentage: getEnvFloat("STORAGE_THRESHOLD_PERCENTAGE", 80),
		MaxItems:            getEnvInt("STORAGE_MAX_ITEMS", 1000),
		MaxAge:              getEnvDuration("STORAGE_MAX_AGE", 30*24*time.Hour),
	}
}

// MediaConfig configures the media blob store and URL handling.
type MediaConfig struct {
	Store         string // local | s3
	UploadDir     string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	URLExpiration time.Duration
	StaleAge      time.Duration
}

func loadMediaConfig() MediaConfig {
	return MediaConfig{
		Store:         getEnv("MEDIA_STORE", "local"),
		UploadDir:     getEnv("MEDIA_UPLOAD_DIR", "./media"),
		S3Bucket:      getEnv("MEDIA_S3_BUCKET", "fieldsync-media"),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		S3Prefix:      getEnv("MEDIA_S3_PREFIX", ""),
		URLExpiration: getEnvDuration("MEDIA_URL_EXPIRATION", time.Hour),
		StaleAge:      getEnvDuration("MEDIA_STALE_AGE", 6*time.Hour),
	}
}

// AlertConfig configures operator alerting.
type AlertConfig struct {
	Provider    string // console | ses
	FromAddress string
	ToAddresses []string
	MinSeverity string
}

func loadAlertConfig() AlertConfig {
	return AlertConfig{
		Provider:    getEnv("ALERT_PROVIDER", "console"),
		FromAddress: getEnv("ALERT_FROM", "alerts@fieldsync.local"),
		ToAddresses: getEnvStringSlice("ALERT_TO", nil),
		MinSeverity: getEnv("ALERT_MIN_SEVERITY", "warning"),
	}
}

// AttestConfig configures the remote attestation endpoints.
type AttestConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadAttestConfig() AttestConfig {
	return AttestConfig{
		BaseURL: getEnv("ATTEST_BASE_URL", "http://localhost:9090"),
		Timeout: getEnvDuration("ATTEST_TIMEOUT", 10*time.Second),
	}
}
