// Package config loads the coordinator's configuration, layering defaults,
// an optional YAML file, and environment variable overrides, in the same
// precedence order and merge-by-non-zero-value style as the teacher's
// project config loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete coordinator configuration.
type Config struct {
	Routing    RoutingConfig    `yaml:"routing" json:"routing"`
	HotCache   HotCacheConfig   `yaml:"hot_cache" json:"hot_cache"`
	ShardPool  ShardPoolConfig  `yaml:"shard_pool" json:"shard_pool"`
	Fanout     FanoutConfig     `yaml:"fanout" json:"fanout"`
	Rank       RankConfig       `yaml:"rank" json:"rank"`
	Cache      ResultCacheConfig `yaml:"result_cache" json:"result_cache"`
	Bloom      BloomConfig      `yaml:"bloom" json:"bloom"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
}

// StorageConfig locates the per-shard storage root directory spec.md §6
// describes: one file per shard underneath it.
type StorageConfig struct {
	Root string `yaml:"root" json:"root"`
}

// VectorConfig configures the dense-vector dimensionality shared by every
// shard's centroid and stored chunk vectors.
type VectorConfig struct {
	Dimensions int `yaml:"dimensions" json:"dimensions"`
}

// RoutingConfig configures the routing index (C3).
type RoutingConfig struct {
	// IndexPath is the path to the routing index's SQLite database file.
	IndexPath string `yaml:"index_path" json:"index_path"`
}

// HotCacheConfig configures the hot-shard LRU cache (C4).
type HotCacheConfig struct {
	// Capacity is the maximum number of RoutingEntry values held in memory.
	Capacity int `yaml:"capacity" json:"capacity"`
}

// ShardPoolConfig configures the per-shard connection pool (C5).
type ShardPoolConfig struct {
	// MaxHandlesPerShard caps open storage handles per shard.
	MaxHandlesPerShard int `yaml:"max_handles_per_shard" json:"max_handles_per_shard"`
	// BusyTimeout is not read by the engine: shardstore.Open sets a fixed
	// 5000 ms busy timeout on every shard handle.
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// FanoutConfig holds the fan-out (C7) and scoring-worker settings. They are
// loaded and validated but not passed on by engine.New: the fan-out
// executor runs with fanout.DefaultParallelism and fanout.DefaultTimeout,
// and the shard router scores on the caller's goroutine with no worker
// pool or queue.
type FanoutConfig struct {
	// MaxConcurrentShards is F: the fan-out parallelism ceiling.
	MaxConcurrentShards int `yaml:"max_concurrent_shards" json:"max_concurrent_shards"`
	// ScoringWorkers is W: the fixed-size scoring worker pool.
	ScoringWorkers int `yaml:"scoring_workers" json:"scoring_workers"`
	// QueryTimeout is T: the overall fan-out deadline.
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
	// QueueDepth bounds queued queries once all scoring workers are busy.
	QueueDepth int `yaml:"queue_depth" json:"queue_depth"`
}

// RankConfig configures the ranker's scorer parameters and fusion defaults
// (C8).
type RankConfig struct {
	PageRankMax      float64 `yaml:"pagerank_max" json:"pagerank_max"`
	FreshnessHalfLife float64 `yaml:"freshness_half_life_days" json:"freshness_half_life_days"`
	RRFConstant      int     `yaml:"rrf_constant" json:"rrf_constant"`
	DefaultFusion    string  `yaml:"default_fusion" json:"default_fusion"`
}

// ResultCacheConfig configures the query result cache (C13).
type ResultCacheConfig struct {
	Capacity int           `yaml:"capacity" json:"capacity"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// BloomConfig configures the bloom-filter primitive (C2) each shard's
// RoutingEntry carries.
type BloomConfig struct {
	Bits      int `yaml:"bits" json:"bits"`
	HashCount int `yaml:"hash_count" json:"hash_count"`
}

// ServerConfig configures the HTTP surface and process-wide logging.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogFile    string `yaml:"log_file" json:"log_file"`
}

// Default returns the coordinator's built-in defaults, matching the
// defaults spec.md documents per component.
func Default() *Config {
	return &Config{
		Vector: VectorConfig{Dimensions: 384},
		Routing: RoutingConfig{
			IndexPath: filepath.Join(defaultDataDir(), "routing.db"),
		},
		Storage: StorageConfig{
			Root: filepath.Join(defaultDataDir(), "shards"),
		},
		HotCache: HotCacheConfig{Capacity: 10000},
		ShardPool: ShardPoolConfig{
			MaxHandlesPerShard: 5,
			BusyTimeout:        5 * time.Second,
		},
		Fanout: FanoutConfig{
			MaxConcurrentShards: 16,
			ScoringWorkers:      10,
			QueryTimeout:        5 * time.Second,
			QueueDepth:          100,
		},
		Rank: RankConfig{
			PageRankMax:       100,
			FreshnessHalfLife: 30,
			RRFConstant:       60,
			DefaultFusion:     "reciprocal_rank",
		},
		Cache: ResultCacheConfig{
			Capacity: 1000,
			TTL:      300 * time.Second,
		},
		Bloom: BloomConfig{Bits: 10000, HashCount: 5},
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   "info",
			LogFile:    "",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mosaicdb")
	}
	return filepath.Join(home, ".mosaicdb")
}

// Load builds the effective configuration: defaults, then an optional YAML
// file at path (if non-empty and it exists), then environment variable
// overrides (highest precedence), then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Vector.Dimensions != 0 {
		c.Vector.Dimensions = other.Vector.Dimensions
	}
	if other.Routing.IndexPath != "" {
		c.Routing.IndexPath = other.Routing.IndexPath
	}
	if other.Storage.Root != "" {
		c.Storage.Root = other.Storage.Root
	}
	if other.HotCache.Capacity != 0 {
		c.HotCache.Capacity = other.HotCache.Capacity
	}
	if other.ShardPool.MaxHandlesPerShard != 0 {
		c.ShardPool.MaxHandlesPerShard = other.ShardPool.MaxHandlesPerShard
	}
	if other.ShardPool.BusyTimeout != 0 {
		c.ShardPool.BusyTimeout = other.ShardPool.BusyTimeout
	}
	if other.Fanout.MaxConcurrentShards != 0 {
		c.Fanout.MaxConcurrentShards = other.Fanout.MaxConcurrentShards
	}
	if other.Fanout.ScoringWorkers != 0 {
		c.Fanout.ScoringWorkers = other.Fanout.ScoringWorkers
	}
	if other.Fanout.QueryTimeout != 0 {
		c.Fanout.QueryTimeout = other.Fanout.QueryTimeout
	}
	if other.Fanout.QueueDepth != 0 {
		c.Fanout.QueueDepth = other.Fanout.QueueDepth
	}
	if other.Rank.PageRankMax != 0 {
		c.Rank.PageRankMax = other.Rank.PageRankMax
	}
	if other.Rank.FreshnessHalfLife != 0 {
		c.Rank.FreshnessHalfLife = other.Rank.FreshnessHalfLife
	}
	if other.Rank.RRFConstant != 0 {
		c.Rank.RRFConstant = other.Rank.RRFConstant
	}
	if other.Rank.DefaultFusion != "" {
		c.Rank.DefaultFusion = other.Rank.DefaultFusion
	}
	if other.Cache.Capacity != 0 {
		c.Cache.Capacity = other.Cache.Capacity
	}
	if other.Cache.TTL != 0 {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Bloom.Bits != 0 {
		c.Bloom.Bits = other.Bloom.Bits
	}
	if other.Bloom.HashCount != 0 {
		c.Bloom.HashCount = other.Bloom.HashCount
	}
	if other.Server.ListenAddr != "" {
		c.Server.ListenAddr = other.Server.ListenAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFile != "" {
		c.Server.LogFile = other.Server.LogFile
	}
}

// applyEnvOverrides applies MOSAICDB_* environment variables, which take
// precedence over both defaults and the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MOSAICDB_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("MOSAICDB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MOSAICDB_LOG_FILE"); v != "" {
		c.Server.LogFile = v
	}
	if v := os.Getenv("MOSAICDB_ROUTING_INDEX_PATH"); v != "" {
		c.Routing.IndexPath = v
	}
	if v := os.Getenv("MOSAICDB_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("MOSAICDB_FANOUT_MAX_CONCURRENT_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Fanout.MaxConcurrentShards = n
		}
	}
	if v := os.Getenv("MOSAICDB_FANOUT_SCORING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Fanout.ScoringWorkers = n
		}
	}
	if v := os.Getenv("MOSAICDB_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Rank.RRFConstant = n
		}
	}
	if v := os.Getenv("MOSAICDB_RESULT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Cache.TTL = d
		}
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	var problems []string

	if c.Vector.Dimensions <= 0 {
		problems = append(problems, "vector.dimensions must be > 0")
	}
	if c.HotCache.Capacity <= 0 {
		problems = append(problems, "hot_cache.capacity must be > 0")
	}
	if c.ShardPool.MaxHandlesPerShard <= 0 {
		problems = append(problems, "shard_pool.max_handles_per_shard must be > 0")
	}
	if c.Fanout.MaxConcurrentShards <= 0 {
		problems = append(problems, "fanout.max_concurrent_shards must be > 0")
	}
	if c.Fanout.ScoringWorkers <= 0 {
		problems = append(problems, "fanout.scoring_workers must be > 0")
	}
	if c.Fanout.QueryTimeout <= 0 {
		problems = append(problems, "fanout.query_timeout must be > 0")
	}
	if c.Rank.RRFConstant <= 0 {
		problems = append(problems, "rank.rrf_constant must be > 0")
	}
	if c.Bloom.Bits <= 0 || c.Bloom.HashCount <= 0 {
		problems = append(problems, "bloom.bits and bloom.hash_count must be > 0")
	}
	switch c.Rank.DefaultFusion {
	case "reciprocal_rank", "weighted_sum", "max_score":
	default:
		problems = append(problems, fmt.Sprintf("rank.default_fusion %q is not one of reciprocal_rank, weighted_sum, max_score", c.Rank.DefaultFusion))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// WriteYAML serializes the configuration to path as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
