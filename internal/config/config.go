package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the validated, once-built environment for the gateway. It is
// constructed by Load() at startup; invalid environments fail fast with a
// clear error instead of surfacing as a runtime panic deep in a handler.
type Config struct {
	Port        string
	Environment string

	Network        string // mainnet | testnet
	PublisherURL   string
	AggregatorURLs []string // primary first, then comma-separated fallbacks

	KVURL      string
	KVPassword string
	KVDB       int

	UploadTmpDir string

	SessionTTL          time.Duration
	MetaTTLExtra        time.Duration // meta TTL = SessionTTL + MetaTTLExtra
	FinalizeLockTTL     time.Duration
	LockRefreshInterval time.Duration

	MinChunkBytes    int64
	MaxChunkBytes    int64
	MaxFileSize      int64
	MaxTotalChunks   int
	MaxActiveUploads int
	MinEpochs        int
	MaxEpochs        int
	DefaultEpochs    int

	ReaperInterval time.Duration
	GCGracePeriod  time.Duration
	StaleTempAge   time.Duration

	PublishTimeout      time.Duration
	PublishMaxRetries   int
	PublishBaseDelay    time.Duration
	PublishConcurrency  int
	PublishIntervalCap  int
	PublishIntervalMs   int
	BalanceCheckMinGap  time.Duration
	BalanceMinThreshold uint64
	SignerSecret        string

	StreamMaxRangeBytes int64
	StreamReadTimeout   time.Duration
	FileFieldsCacheTTL  time.Duration

	ExposeBlobID bool
}

// Load builds the Config from the process environment, applying the same
// fallback-then-fatal discipline as the rest of the gateway's ambient stack.
func Load() (*Config, error) {
	LoadEnvOnce()

	aggURLs := []string{}
	primary := GetEnvWithFallback("FLOE_AGGREGATOR_URL", "")
	if primary != "" {
		aggURLs = append(aggURLs, primary)
	}
	if fallbacks := GetEnvWithFallback("FLOE_AGGREGATOR_FALLBACK_URLS", ""); fallbacks != "" {
		for _, u := range strings.Split(fallbacks, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				aggURLs = append(aggURLs, u)
			}
		}
	}

	cfg := &Config{
		Port:        GetEnvWithFallback("PORT", "8080"),
		Environment: GetEnvWithFallback("ENVIRONMENT", "development"),

		Network:        GetEnvWithFallback("FLOE_NETWORK", "testnet"),
		PublisherURL:   GetEnvWithFallback("FLOE_PUBLISHER_URL", "http://localhost:31415"),
		AggregatorURLs: aggURLs,

		KVURL:      GetEnvWithFallback("FLOE_KV_URL", "redis://localhost:6379/0"),
		KVPassword: GetEnvWithFallback("FLOE_KV_PASSWORD", ""),
		KVDB:       atoiFallback("FLOE_KV_DB", 0),

		UploadTmpDir: GetEnvWithFallback("UPLOAD_TMP_DIR", "/var/lib/floe/tmp"),

		SessionTTL:          durationFallback("FLOE_SESSION_TTL", 6*time.Hour),
		MetaTTLExtra:        durationFallback("FLOE_META_TTL_EXTRA", 30*time.Minute),
		FinalizeLockTTL:     durationFallback("FLOE_FINALIZE_LOCK_TTL", 15*time.Minute),
		LockRefreshInterval: durationFallback("FLOE_LOCK_REFRESH_INTERVAL", 60*time.Second),

		MinChunkBytes:    256 << 10,
		MaxChunkBytes:    20 << 20,
		MaxFileSize:      15 << 30,
		MaxTotalChunks:   200_000,
		MaxActiveUploads: atoiFallback("FLOE_MAX_ACTIVE_UPLOADS", 100),
		MinEpochs:        1,
		MaxEpochs:        90,
		DefaultEpochs:    atoiFallback("FLOE_DEFAULT_EPOCHS", 5),

		ReaperInterval: durationFallback("FLOE_REAPER_INTERVAL", 5*time.Minute),
		GCGracePeriod:  durationFallback("FLOE_GC_GRACE_PERIOD", 15*time.Minute),
		StaleTempAge:   durationFallback("FLOE_STALE_TEMP_AGE", 10*time.Minute),

		PublishTimeout:      durationFallback("FLOE_PUBLISH_TIMEOUT", 5*time.Minute),
		PublishMaxRetries:   atoiFallback("FLOE_PUBLISH_MAX_RETRIES", 3),
		PublishBaseDelay:    durationFallback("FLOE_PUBLISH_BASE_DELAY", 500*time.Millisecond),
		PublishConcurrency:  atoiFallback("FLOE_PUBLISH_CONCURRENCY", 4),
		PublishIntervalCap:  atoiFallback("FLOE_PUBLISH_INTERVAL_CAP", 8),
		PublishIntervalMs:   atoiFallback("FLOE_PUBLISH_INTERVAL_MS", 1000),
		BalanceCheckMinGap:  durationFallback("FLOE_BALANCE_CHECK_MIN_GAP", 60*time.Second),
		BalanceMinThreshold: uint64(atoiFallback("FLOE_BALANCE_MIN_THRESHOLD", 1_000_000)),
		SignerSecret:        GetEnvWithFallback("FLOE_SIGNER_SECRET", ""),

		StreamMaxRangeBytes: int64(atoiFallback("FLOE_STREAM_MAX_RANGE_BYTES", 8<<20)),
		StreamReadTimeout:   durationFallback("FLOE_STREAM_READ_TIMEOUT", 10*time.Minute),
		FileFieldsCacheTTL:  time.Duration(atoiFallback("FLOE_FILE_FIELDS_CACHE_TTL_MS", int((24*time.Hour).Milliseconds()))) * time.Millisecond,

		ExposeBlobID: GetEnvBool("FLOE_EXPOSE_BLOB_ID", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the invariants the rest of the gateway assumes hold for
// the lifetime of the process: an absolute, non-root tmp dir; sane clamps;
// a mainnet profile that actually carries signer material.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.UploadTmpDir) {
		return fmt.Errorf("UPLOAD_TMP_DIR must be an absolute path, got %q", c.UploadTmpDir)
	}
	clean := filepath.Clean(c.UploadTmpDir)
	home, _ := os.UserHomeDir()
	for _, forbidden := range []string{"/", "/home", home} {
		if forbidden != "" && clean == forbidden {
			return fmt.Errorf("UPLOAD_TMP_DIR must not be %q", forbidden)
		}
	}

	if c.Network != "mainnet" && c.Network != "testnet" {
		return fmt.Errorf("FLOE_NETWORK must be mainnet or testnet, got %q", c.Network)
	}
	if c.Network == "mainnet" && c.SignerSecret == "" {
		return fmt.Errorf("FLOE_SIGNER_SECRET is required on mainnet")
	}
	if len(c.AggregatorURLs) == 0 {
		return fmt.Errorf("at least one aggregator URL is required (FLOE_AGGREGATOR_URL)")
	}
	if c.MinChunkBytes > c.MaxChunkBytes {
		return fmt.Errorf("invalid chunk size clamp range")
	}

	return nil
}

// ProbeTmpDirWritable verifies UploadTmpDir exists (creating it if absent)
// and that the process can actually write into it.
func (c *Config) ProbeTmpDirWritable() error {
	if err := os.MkdirAll(c.UploadTmpDir, 0o755); err != nil {
		return fmt.Errorf("creating upload tmp dir: %w", err)
	}
	probe := filepath.Join(c.UploadTmpDir, ".floe-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("upload tmp dir %q is not writable: %w", c.UploadTmpDir, err)
	}
	return os.Remove(probe)
}

func atoiFallback(key string, fallback int) int {
	v, err := strconv.Atoi(GetEnvWithFallback(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func durationFallback(key string, fallback time.Duration) time.Duration {
	raw := GetEnvWithFallback(key, fallback.String())
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
