// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and the detection rules from YAML.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed candidates.yaml
var defaultRules []byte

// Metric is one selectable statistic.
type Metric struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Rules holds the candidate property names and the data-quality thresholds.
// Kept outside the code so new source schemas need no code change.
type Rules struct {
	CodeKeys   []string `yaml:"code_keys"`
	NameKeys   []string `yaml:"name_keys"`
	ParentKeys []string `yaml:"parent_keys"`

	MinCodeScore       float64 `yaml:"min_code_score"`
	MinNameScore       float64 `yaml:"min_name_score"`
	ParentNumericRatio float64 `yaml:"parent_numeric_ratio"`
	ParentLengthRatio  float64 `yaml:"parent_length_ratio"`

	CoverageThreshold float64 `yaml:"coverage_threshold"`
	JoinThreshold     float64 `yaml:"join_threshold"`

	Metrics []Metric `yaml:"metrics"`
}

// Config is the process configuration.
type Config struct {
	DataDir   string
	DBPath    string
	APIBase   string
	RedisAddr string
	RedisPass string
	RedisDB   int
	CacheTTL  time.Duration
	LogMode   string
	Metric    string
	Time      string
	Classes   int
	RulesPath string
	Rules     Rules
}

// DefaultRules returns the embedded rule set.
func DefaultRules() Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded candidates.yaml: %v", err))
	}
	return r
}

// ParseRules decodes a YAML rule set. Missing thresholds keep their
// documented defaults.
func ParseRules(data []byte) (Rules, error) {
	r := Rules{
		MinCodeScore:       0.3,
		MinNameScore:       0.5,
		ParentNumericRatio: 0.9,
		ParentLengthRatio:  0.7,
		CoverageThreshold:  0.95,
		JoinThreshold:      0.9,
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parsing rules: %w", err)
	}
	if len(r.CodeKeys) == 0 || len(r.NameKeys) == 0 {
		return Rules{}, fmt.Errorf("rules need at least one code key and one name key")
	}
	return r, nil
}

// LoadRules reads a YAML rule file, or the embedded defaults when path is empty.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return ParseRules(defaultRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// MetricKeys returns the configured metric keys in order.
func (r Rules) MetricKeys() []string {
	keys := make([]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		keys = append(keys, m.Key)
	}
	return keys
}

// MetricLabel returns the display label for key, or key itself.
func (r Rules) MetricLabel(key string) string {
	for _, m := range r.Metrics {
		if m.Key == key {
			return m.Label
		}
	}
	return key
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		DataDir:   getenv("GEODRILL_DATA_DIR", "./data/geo"),
		DBPath:    getenv("GEODRILL_DB", "./data/kpi.db"),
		APIBase:   os.Getenv("GEODRILL_API_BASE"),
		RedisPass: os.Getenv("REDIS_PASS"),
		LogMode:   getenv("LOG_MODE", "dev"),
		Metric:    os.Getenv("GEODRILL_METRIC"),
		Time:      getenv("GEODRILL_TIME", "2025-12"),
		Classes:   5,
		CacheTTL:  10 * time.Minute,
		RulesPath: os.Getenv("GEODRILL_CANDIDATES"),
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisAddr = host + ":" + getenv("REDIS_PORT", "6379")
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("GEODRILL_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GEODRILL_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("GEODRILL_CLASSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			return nil, fmt.Errorf("GEODRILL_CLASSES must be an integer >= 2, got %q", v)
		}
		cfg.Classes = n
	}

	rules, err := LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	if cfg.Metric == "" && len(rules.Metrics) > 0 {
		cfg.Metric = rules.Metrics[0].Key
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
