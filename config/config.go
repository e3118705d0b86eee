// Package config loads service configuration from config.yaml with
// environment-variable overrides for deployment-specific endpoints.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Redis struct {
	URL     string        `mapstructure:"url"`
	TaskTTL time.Duration `mapstructure:"task_ttl"`
	DataTTL time.Duration `mapstructure:"data_ttl"`
}

type NATS struct {
	URL string `mapstructure:"url"`
}

type S3 struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type Engine struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Engines struct {
	ASR        Engine `mapstructure:"asr"`
	Prosody    Engine `mapstructure:"prosody"`
	Grammar    Engine `mapstructure:"grammar"`
	Embedding  Engine `mapstructure:"embedding"`
	Transcoder Engine `mapstructure:"transcoder"`
	Renderer   Engine `mapstructure:"renderer"`
}

type Workers struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
}

type Features struct {
	TimeWindow float64 `mapstructure:"time_window"` // sec, WPM timeline window
	Overlap    float64 `mapstructure:"overlap"`     // sec
}

type Root struct {
	LogLevel string   `mapstructure:"log_level"`
	HTTP     HTTP     `mapstructure:"http"`
	Redis    Redis    `mapstructure:"redis"`
	NATS     NATS     `mapstructure:"nats"`
	S3       S3       `mapstructure:"s3"`
	Engines  Engines  `mapstructure:"engines"`
	Workers  Workers  `mapstructure:"workers"`
	Features Features `mapstructure:"features"`
}

// Load reads config.yaml from the working directory or /etc/speechcoach,
// applies defaults and environment overrides. A missing file is fine; the
// defaults describe a local docker-compose deployment.
func Load() (*Root, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/speechcoach")

	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.task_ttl", time.Hour)
	v.SetDefault("redis.data_ttl", 24*time.Hour)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key", "minioadmin")
	v.SetDefault("s3.secret_key", "minioadmin")
	v.SetDefault("s3.bucket", "speechcoach")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("engines.asr.url", "http://localhost:9001")
	v.SetDefault("engines.prosody.url", "http://localhost:9002")
	v.SetDefault("engines.grammar.url", "http://localhost:9003")
	v.SetDefault("engines.embedding.url", "http://localhost:9004")
	v.SetDefault("engines.transcoder.url", "http://localhost:9005")
	v.SetDefault("engines.renderer.url", "http://localhost:9006")
	for _, engine := range []string{"asr", "prosody", "grammar", "embedding", "transcoder", "renderer"} {
		v.SetDefault("engines."+engine+".timeout", 60*time.Second)
	}
	v.SetDefault("workers.max_concurrent", 4)
	v.SetDefault("features.time_window", 15.0)
	v.SetDefault("features.overlap", 5.0)

	for key, env := range map[string]string{
		"redis.url":              "REDIS_URL",
		"nats.url":               "NATS_URL",
		"s3.endpoint":            "S3_ENDPOINT",
		"s3.access_key":          "S3_ACCESS_KEY",
		"s3.secret_key":          "S3_SECRET_KEY",
		"s3.bucket":              "S3_BUCKET",
		"engines.asr.url":        "ASR_ENGINE_URL",
		"engines.prosody.url":    "PROSODY_ENGINE_URL",
		"engines.grammar.url":    "GRAMMAR_ENGINE_URL",
		"engines.embedding.url":  "EMBEDDING_ENGINE_URL",
		"engines.transcoder.url": "TRANSCODER_ENGINE_URL",
		"engines.renderer.url":   "RENDERER_ENGINE_URL",
		"http.addr":              "HTTP_ADDR",
		"log_level":              "LOG_LEVEL",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
