package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig `json:"server"`
	Queue    QueueConfig  `json:"queue"`
	Fetch    FetchConfig  `json:"fetch"`
	Image    ImageConfig  `json:"image"`
	Database Database     `json:"database"`
	Redis    RedisConfig  `json:"redis"`
	R2       R2Config     `json:"r2"`
	Sentry   SentryConfig `json:"sentry"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type QueueConfig struct {
	PerItemEstimateSeconds int           `json:"per_item_estimate_seconds"` // reported to clients as position * estimate
	DrainDelaySeconds      time.Duration `json:"drain_delay"`               // pause between items, seconds
	ProcessTimeoutSeconds  time.Duration `json:"process_timeout"`           // bound on fetch+transcode+upload, seconds
	PreviewSize            int           `json:"preview_size"`              // items shown in the aggregate view
}

func (q QueueConfig) EstimateSeconds() int {
	if q.PerItemEstimateSeconds <= 0 {
		return 30
	}
	return q.PerItemEstimateSeconds
}

func (q QueueConfig) DrainDelay() time.Duration {
	if q.DrainDelaySeconds <= 0 {
		return 2 * time.Second
	}
	return q.DrainDelaySeconds * time.Second
}

func (q QueueConfig) ProcessTimeout() time.Duration {
	if q.ProcessTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return q.ProcessTimeoutSeconds * time.Second
}

type FetchConfig struct {
	TimeoutSeconds time.Duration `json:"timeout"`        // seconds
	MaxBodyBytes   int64         `json:"max_body_bytes"` // cap on downloaded image size
}

type ImageConfig struct {
	MaxEdge     int     `json:"max_edge"`     // longest edge of the optimized asset
	ThumbEdge   int     `json:"thumb_edge"`   // longest edge of the thumbnail
	WebPQuality float32 `json:"webp_quality"` // 0-100
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	PublicBase  string `json:"public_base"` // public URL the bucket is served from
	KeyPrefix   string `json:"key_prefix"`  // e.g. "eventos"
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
