package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the batch process needs. Values come from the
// environment so main stays lean and the scheduler controls the deployment.
type Config struct {
	// Upstream relational sources.
	JurinetDSN string
	JuricaDSN  string

	// Canonical document store.
	DocStoreDSN string
	// ReadOnly turns every document-store write into a logged no-op.
	ReadOnly bool

	// External collaborators.
	ZoningURL      string
	ReviewQueueURL string

	RedisURL    string
	TaxonomyTTL time.Duration

	KafkaBrokers   []string
	LifecycleTopic string

	OpsAddr string

	StateDir string

	BatchSize           int
	EmptyRoundThreshold int
	OffsetCeiling       int64
	RunTimeout          time.Duration
}

// FromEnv builds a Config from environment variables, with defaults sized
// for a development run against local containers.
func FromEnv() Config {
	return Config{
		JurinetDSN:     os.Getenv("JURISYNC_JURINET_DSN"),
		JuricaDSN:      os.Getenv("JURISYNC_JURICA_DSN"),
		DocStoreDSN:    os.Getenv("JURISYNC_DOCSTORE_DSN"),
		ReadOnly:       os.Getenv("JURISYNC_READ_ONLY") == "true",
		ZoningURL:      envOr("JURISYNC_ZONING_URL", "http://localhost:8090"),
		ReviewQueueURL: envOr("JURISYNC_REVIEW_QUEUE_URL", "http://localhost:8091"),
		RedisURL:       os.Getenv("JURISYNC_REDIS_URL"),
		TaxonomyTTL:    envDuration("JURISYNC_TAXONOMY_TTL", 5*time.Minute),
		KafkaBrokers:   envList("JURISYNC_KAFKA_BROKERS"),
		LifecycleTopic: envOr("JURISYNC_LIFECYCLE_TOPIC", "jurisync.lifecycle"),
		OpsAddr:        envOr("JURISYNC_OPS_ADDR", ":9090"),
		StateDir:       envOr("JURISYNC_STATE_DIR", "./state"),
		BatchSize:      envInt("JURISYNC_BATCH_SIZE", 500),
		EmptyRoundThreshold: envInt("JURISYNC_EMPTY_ROUND_THRESHOLD", 10),
		OffsetCeiling:       int64(envInt("JURISYNC_OFFSET_CEILING", 2_000_000)),
		RunTimeout:          envDuration("JURISYNC_RUN_TIMEOUT", 50*time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
