// Package conf reads the service configuration from the environment.
package conf

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Env        string
	ListenAddr string
	JwtKey     []byte
	AwsRegion  string

	// Exam definitions are TOML files in ExamDir, reloaded after
	// ExamCacheTTL.
	ExamDir      string
	ExamCacheTTL time.Duration

	JudgeReqQueueUrl  string
	JudgeRespQueueUrl string
	JudgeTimeout      time.Duration
	EventsQueueUrl    string
	EvidenceBucket    string
	DeviceTable       string

	LeaderboardCacheTTL time.Duration
	CorsOrigins         []string
	// OtelEndpoint is empty when tracing is not exported.
	OtelEndpoint string
}

// FromEnv reads the configuration, failing on the first missing
// required variable.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:               envOr("PROCTOR_ENV", "dev"),
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		JwtKey:            []byte(os.Getenv("JWT_KEY")),
		AwsRegion:         envOr("AWS_REGION", "eu-central-1"),
		ExamDir:           envOr("EXAM_DIR", "./exams"),
		JudgeReqQueueUrl:  os.Getenv("JUDGE_REQ_QUEUE_URL"),
		JudgeRespQueueUrl: os.Getenv("JUDGE_RESP_QUEUE_URL"),
		EventsQueueUrl:    os.Getenv("EVENTS_QUEUE_URL"),
		EvidenceBucket:    os.Getenv("EVIDENCE_BUCKET"),
		DeviceTable:       envOr("DEVICE_TABLE", "proctor_devices"),
		OtelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CorsOrigins:       splitList(envOr("CORS_ORIGINS", "http://localhost:3000")),
	}

	for _, req := range []struct{ key, val string }{
		{"JWT_KEY", string(cfg.JwtKey)},
		{"JUDGE_REQ_QUEUE_URL", cfg.JudgeReqQueueUrl},
		{"JUDGE_RESP_QUEUE_URL", cfg.JudgeRespQueueUrl},
		{"EVIDENCE_BUCKET", cfg.EvidenceBucket},
	} {
		if req.val == "" {
			return Config{}, fmt.Errorf("%s is not set", req.key)
		}
	}

	var err error
	if cfg.ExamCacheTTL, err = durationOr("EXAM_CACHE_TTL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.JudgeTimeout, err = durationOr("JUDGE_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.LeaderboardCacheTTL, err = durationOr("LEADERBOARD_CACHE_TTL", 5*time.Second); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
