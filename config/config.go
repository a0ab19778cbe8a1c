// Package config defines the immutable runtime configuration.
//
// Settings are constructed exactly once at process start via Load and passed
// by reference into every component constructor. Load reads an optional YAML
// file, expands ${VAR} references against the environment, applies
// environment variable overrides, and validates everything up front so that
// bad settings surface as configuration errors before any API call is made.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
)

// Defaults and validation bounds.
const (
	DefaultRegion             = "us-east-1"
	DefaultRateRPS            = 5
	DefaultMaxRetries         = 5
	DefaultBackoffBaseSeconds = 0.3
	DefaultBackoffMaxSeconds  = 8.0
	DefaultFailThreshold      = 5
	DefaultResetSeconds       = 60
	DefaultAPITimeoutSeconds  = 60

	DefaultCacheTTLSeconds = 300
	DefaultCacheMaxEntries = 1000
	DefaultOrgTTLSeconds   = 1800

	DefaultMemberRoleName = "OrganizationAccountAccessRole"

	DefaultAnomalyHistoryDays = 60
	DefaultZScoreThreshold    = 3.0
	DefaultAnomalyMinPoints   = 14
	DefaultAnomalyMethod      = "both"

	DefaultFanOutConcurrency = 4
	DefaultLookbackDays      = 30
	DefaultLogLevel          = "info"

	MaxRateRPS    = 1000
	MaxRetryCount = 10
)

// AWSSettings selects the credential resolution strategy.
type AWSSettings struct {
	Region          string `yaml:"region"`
	RoleARN         string `yaml:"role_arn"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Profile         string `yaml:"profile"`
}

// ResilienceSettings tunes the outbound call envelope.
type ResilienceSettings struct {
	RateRPS            float64 `yaml:"rate_rps"`
	MaxRetries         int     `yaml:"max_retries"`
	BackoffBaseSeconds float64 `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds  float64 `yaml:"backoff_max_seconds"`
	FailThreshold      int     `yaml:"circuit_fail_threshold"`
	ResetSeconds       int     `yaml:"circuit_reset_seconds"`
	APITimeoutSeconds  int     `yaml:"api_timeout_seconds"`
}

// BackoffBase returns the backoff base as a duration.
func (r ResilienceSettings) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseSeconds * float64(time.Second))
}

// BackoffMax returns the backoff cap as a duration.
func (r ResilienceSettings) BackoffMax() time.Duration {
	return time.Duration(r.BackoffMaxSeconds * float64(time.Second))
}

// ResetTimeout returns the circuit breaker reset window as a duration.
func (r ResilienceSettings) ResetTimeout() time.Duration {
	return time.Duration(r.ResetSeconds) * time.Second
}

// APITimeout returns the outbound connect/read timeout as a duration.
func (r ResilienceSettings) APITimeout() time.Duration {
	return time.Duration(r.APITimeoutSeconds) * time.Second
}

// CacheSettings holds per-domain TTLs and the size bound.
type CacheSettings struct {
	DefaultTTLSeconds       int `yaml:"default_ttl_seconds"`
	MaxEntries              int `yaml:"max_entries"`
	CostTTLSeconds          int `yaml:"cost_ttl_seconds"`
	AnomalyTTLSeconds       int `yaml:"anomaly_ttl_seconds"`
	RecommendationTTL       int `yaml:"recommendation_ttl_seconds"`
	TagComplianceTTLSeconds int `yaml:"tag_compliance_ttl_seconds"`
}

// Cache data domains.
const (
	DomainCost           = "cost"
	DomainAnomaly        = "anomaly"
	DomainRecommendation = "recommendation"
	DomainTagCompliance  = "tag_compliance"
)

// TTLFor returns the effective TTL for a data domain, falling back to the
// default when the domain has no override.
func (c CacheSettings) TTLFor(domain string) time.Duration {
	seconds := c.DefaultTTLSeconds
	switch domain {
	case DomainCost:
		if c.CostTTLSeconds > 0 {
			seconds = c.CostTTLSeconds
		}
	case DomainAnomaly:
		if c.AnomalyTTLSeconds > 0 {
			seconds = c.AnomalyTTLSeconds
		}
	case DomainRecommendation:
		if c.RecommendationTTL > 0 {
			seconds = c.RecommendationTTL
		}
	case DomainTagCompliance:
		if c.TagComplianceTTLSeconds > 0 {
			seconds = c.TagComplianceTTLSeconds
		}
	}
	return time.Duration(seconds) * time.Second
}

// OrgSettings scopes multi-account enumeration.
type OrgSettings struct {
	ManagementAccountID string   `yaml:"management_account_id"`
	MemberRoleName      string   `yaml:"member_role_name"`
	Allowlist           []string `yaml:"account_allowlist"`
	ExcludeList         []string `yaml:"account_exclude_list"`
	CacheTTLSeconds     int      `yaml:"cache_ttl_seconds"`
	SingleAccountMode   bool     `yaml:"single_account_mode"`
	FanOutConcurrency   int      `yaml:"fan_out_concurrency"`
}

// CacheTTL returns the account list cache TTL as a duration.
func (o OrgSettings) CacheTTL() time.Duration {
	return time.Duration(o.CacheTTLSeconds) * time.Second
}

// AnomalySettings tunes anomaly scoring and alerting.
type AnomalySettings struct {
	HistoryDays     int     `yaml:"history_days"`
	ZScoreThreshold float64 `yaml:"zscore_threshold"`
	Method          string  `yaml:"method"` // zscore, backend, both
	MinPoints       int     `yaml:"min_points"`
	AlertEnabled    bool    `yaml:"alert_enabled"`
	AlertTopicARN   string  `yaml:"alert_topic_arn"`
}

// ComplianceSettings scopes the tag compliance scan.
type ComplianceSettings struct {
	RequiredTags []string `yaml:"required_tags"`
	Regions      []string `yaml:"regions"`
}

// ThresholdSettings carries cost alerting thresholds.
type ThresholdSettings struct {
	DailyWarning   float64 `yaml:"daily_warning"`
	MonthlyWarning float64 `yaml:"monthly_warning"`
}

// ObserveSettings tunes logging and telemetry.
type ObserveSettings struct {
	LogLevel        string  `yaml:"log_level"`
	MetricsExporter string  `yaml:"metrics_exporter"` // prometheus, stdout, none
	TracingExporter string  `yaml:"tracing_exporter"` // stdout, none
	TraceSamplePct  float64 `yaml:"trace_sample_pct"`
}

// Settings is the complete, validated runtime configuration.
type Settings struct {
	AWS          AWSSettings        `yaml:"aws"`
	Resilience   ResilienceSettings `yaml:"resilience"`
	Cache        CacheSettings      `yaml:"cache"`
	Org          OrgSettings        `yaml:"org"`
	Anomaly      AnomalySettings    `yaml:"anomaly"`
	Compliance   ComplianceSettings `yaml:"compliance"`
	Thresholds   ThresholdSettings  `yaml:"thresholds"`
	Observe      ObserveSettings    `yaml:"observe"`
	LookbackDays int                `yaml:"lookback_days"`
}

// Load builds Settings from an optional YAML file and the environment.
// An empty path skips the file and uses defaults plus environment overrides.
func Load(path string) (*Settings, error) {
	cfg := &Settings{}

	if path != "" {
		// #nosec G304 -- path comes from an operator-supplied flag.
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindConfiguration, "failed to read config file", "path", path)
		}
		expanded, err := expandEnvStrict(string(raw))
		if err != nil {
			return nil, errs.Wrap(err, errs.KindConfiguration, "failed to expand config file", "path", path)
		}
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errs.Wrap(err, errs.KindConfiguration, "failed to parse config file", "path", path)
		}
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Settings) {
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultRegion
	}
	if cfg.Resilience.RateRPS == 0 {
		cfg.Resilience.RateRPS = DefaultRateRPS
	}
	if cfg.Resilience.MaxRetries == 0 {
		cfg.Resilience.MaxRetries = DefaultMaxRetries
	}
	if cfg.Resilience.BackoffBaseSeconds == 0 {
		cfg.Resilience.BackoffBaseSeconds = DefaultBackoffBaseSeconds
	}
	if cfg.Resilience.BackoffMaxSeconds == 0 {
		cfg.Resilience.BackoffMaxSeconds = DefaultBackoffMaxSeconds
	}
	if cfg.Resilience.FailThreshold == 0 {
		cfg.Resilience.FailThreshold = DefaultFailThreshold
	}
	if cfg.Resilience.ResetSeconds == 0 {
		cfg.Resilience.ResetSeconds = DefaultResetSeconds
	}
	if cfg.Resilience.APITimeoutSeconds == 0 {
		cfg.Resilience.APITimeoutSeconds = DefaultAPITimeoutSeconds
	}
	if cfg.Cache.DefaultTTLSeconds == 0 {
		cfg.Cache.DefaultTTLSeconds = DefaultCacheTTLSeconds
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Org.MemberRoleName == "" {
		cfg.Org.MemberRoleName = DefaultMemberRoleName
	}
	if cfg.Org.CacheTTLSeconds == 0 {
		cfg.Org.CacheTTLSeconds = DefaultOrgTTLSeconds
	}
	if cfg.Org.FanOutConcurrency == 0 {
		cfg.Org.FanOutConcurrency = DefaultFanOutConcurrency
	}
	if cfg.Anomaly.HistoryDays == 0 {
		cfg.Anomaly.HistoryDays = DefaultAnomalyHistoryDays
	}
	if cfg.Anomaly.ZScoreThreshold == 0 {
		cfg.Anomaly.ZScoreThreshold = DefaultZScoreThreshold
	}
	if cfg.Anomaly.Method == "" {
		cfg.Anomaly.Method = DefaultAnomalyMethod
	}
	if cfg.Anomaly.MinPoints == 0 {
		cfg.Anomaly.MinPoints = DefaultAnomalyMinPoints
	}
	if len(cfg.Compliance.RequiredTags) == 0 {
		cfg.Compliance.RequiredTags = []string{"Environment", "Owner", "Project", "CostCenter"}
	}
	if len(cfg.Compliance.Regions) == 0 {
		cfg.Compliance.Regions = []string{cfg.AWS.Region}
	}
	if cfg.Thresholds.DailyWarning == 0 {
		cfg.Thresholds.DailyWarning = 1000
	}
	if cfg.Thresholds.MonthlyWarning == 0 {
		cfg.Thresholds.MonthlyWarning = 10000
	}
	if cfg.Observe.LogLevel == "" {
		cfg.Observe.LogLevel = DefaultLogLevel
	}
	if cfg.Observe.MetricsExporter == "" {
		cfg.Observe.MetricsExporter = "none"
	}
	if cfg.Observe.TracingExporter == "" {
		cfg.Observe.TracingExporter = "none"
	}
	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
}

func applyEnvOverrides(cfg *Settings) error {
	cfg.AWS.Region = envString("AWS_REGION", envString("AWS_DEFAULT_REGION", cfg.AWS.Region))
	cfg.AWS.RoleARN = envString("AWS_ROLE_ARN", cfg.AWS.RoleARN)
	cfg.AWS.AccessKeyID = envString("AWS_ACCESS_KEY_ID", cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = envString("AWS_SECRET_ACCESS_KEY", cfg.AWS.SecretAccessKey)
	cfg.AWS.SessionToken = envString("AWS_SESSION_TOKEN", cfg.AWS.SessionToken)
	cfg.AWS.Profile = envString("AWS_PROFILE", cfg.AWS.Profile)

	var err error
	if cfg.Resilience.RateRPS, err = envFloat("RATE_LIMIT_RPS", cfg.Resilience.RateRPS); err != nil {
		return err
	}
	if cfg.Resilience.MaxRetries, err = envInt("MAX_RETRIES", cfg.Resilience.MaxRetries); err != nil {
		return err
	}
	if cfg.Resilience.BackoffBaseSeconds, err = envFloat("BACKOFF_BASE", cfg.Resilience.BackoffBaseSeconds); err != nil {
		return err
	}
	if cfg.Resilience.BackoffMaxSeconds, err = envFloat("BACKOFF_MAX", cfg.Resilience.BackoffMaxSeconds); err != nil {
		return err
	}
	if cfg.Resilience.FailThreshold, err = envInt("CB_FAIL_THRESHOLD", cfg.Resilience.FailThreshold); err != nil {
		return err
	}
	if cfg.Resilience.ResetSeconds, err = envInt("CB_RESET_SECONDS", cfg.Resilience.ResetSeconds); err != nil {
		return err
	}
	if cfg.Cache.DefaultTTLSeconds, err = envInt("CACHE_DEFAULT_TTL_SECONDS", cfg.Cache.DefaultTTLSeconds); err != nil {
		return err
	}
	if cfg.Cache.MaxEntries, err = envInt("CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries); err != nil {
		return err
	}
	if cfg.Org.CacheTTLSeconds, err = envInt("ORG_CACHE_TTL", cfg.Org.CacheTTLSeconds); err != nil {
		return err
	}
	if cfg.Anomaly.HistoryDays, err = envInt("ANOMALY_HISTORY_DAYS", cfg.Anomaly.HistoryDays); err != nil {
		return err
	}
	if cfg.Anomaly.ZScoreThreshold, err = envFloat("ANOMALY_ZSCORE_THRESHOLD", cfg.Anomaly.ZScoreThreshold); err != nil {
		return err
	}
	if cfg.Anomaly.MinPoints, err = envInt("ANOMALY_MIN_POINTS", cfg.Anomaly.MinPoints); err != nil {
		return err
	}

	cfg.Org.ManagementAccountID = envString("ORG_MANAGEMENT_ACCOUNT_ID", cfg.Org.ManagementAccountID)
	cfg.Org.MemberRoleName = envString("ORG_MEMBER_ROLE_NAME", cfg.Org.MemberRoleName)
	cfg.Org.Allowlist = envList("ORG_ACCOUNT_ALLOWLIST", cfg.Org.Allowlist)
	cfg.Org.ExcludeList = envList("ORG_ACCOUNT_EXCLUDE_LIST", cfg.Org.ExcludeList)
	if cfg.Org.SingleAccountMode, err = envBool("SINGLE_ACCOUNT_MODE", cfg.Org.SingleAccountMode); err != nil {
		return err
	}
	if cfg.Anomaly.AlertEnabled, err = envBool("ANOMALY_ALERT_ENABLED", cfg.Anomaly.AlertEnabled); err != nil {
		return err
	}
	cfg.Anomaly.AlertTopicARN = envString("ANOMALY_ALERT_TOPIC_ARN", cfg.Anomaly.AlertTopicARN)
	cfg.Anomaly.Method = envString("ANOMALY_METHOD", cfg.Anomaly.Method)
	cfg.Compliance.RequiredTags = envList("REQUIRED_TAG_KEYS", cfg.Compliance.RequiredTags)
	cfg.Observe.LogLevel = envString("LOG_LEVEL", cfg.Observe.LogLevel)
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.New(errs.KindConfiguration, "invalid integer environment variable", "name", key, "value", v)
	}
	return i, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errs.New(errs.KindConfiguration, "invalid numeric environment variable", "name", key, "value", v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errs.New(errs.KindConfiguration, "invalid boolean environment variable", "name", key, "value", v)
	}
	return b, nil
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

var (
	regionPattern    = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)
	accountIDPattern = regexp.MustCompile(`^\d{12}$`)
)

// Validate checks every setting and returns a configuration-kind error on
// the first violation.
func (s *Settings) Validate() error {
	if !regionPattern.MatchString(s.AWS.Region) {
		return errs.New(errs.KindConfiguration, "invalid AWS region format", "region", s.AWS.Region)
	}
	if s.Resilience.RateRPS < 1 || s.Resilience.RateRPS > MaxRateRPS {
		return errs.New(errs.KindConfiguration, "rate_rps out of range", "rate_rps", s.Resilience.RateRPS)
	}
	if s.Resilience.MaxRetries < 0 || s.Resilience.MaxRetries > MaxRetryCount {
		return errs.New(errs.KindConfiguration, "max_retries out of range", "max_retries", s.Resilience.MaxRetries)
	}
	if s.Resilience.BackoffBaseSeconds < 0 || s.Resilience.BackoffMaxSeconds < s.Resilience.BackoffBaseSeconds {
		return errs.New(errs.KindConfiguration, "backoff bounds invalid",
			"base", s.Resilience.BackoffBaseSeconds, "max", s.Resilience.BackoffMaxSeconds)
	}
	if s.Resilience.FailThreshold < 1 {
		return errs.New(errs.KindConfiguration, "circuit_fail_threshold must be at least 1")
	}
	if s.Resilience.ResetSeconds < 1 {
		return errs.New(errs.KindConfiguration, "circuit_reset_seconds must be at least 1")
	}
	if s.Resilience.APITimeoutSeconds < 1 {
		return errs.New(errs.KindConfiguration, "api_timeout_seconds must be at least 1")
	}
	if s.Cache.MaxEntries < 1 {
		return errs.New(errs.KindConfiguration, "cache max_entries must be at least 1")
	}
	if s.Org.ManagementAccountID != "" && !accountIDPattern.MatchString(s.Org.ManagementAccountID) {
		return errs.New(errs.KindConfiguration, "management account ID must be a 12-digit string",
			"account_id", s.Org.ManagementAccountID)
	}
	for _, id := range s.Org.Allowlist {
		if !accountIDPattern.MatchString(id) {
			return errs.New(errs.KindConfiguration, "invalid account ID in allowlist", "account_id", id)
		}
	}
	for _, id := range s.Org.ExcludeList {
		if !accountIDPattern.MatchString(id) {
			return errs.New(errs.KindConfiguration, "invalid account ID in exclude list", "account_id", id)
		}
	}
	switch s.Anomaly.Method {
	case "zscore", "backend", "both":
	default:
		return errs.New(errs.KindConfiguration, "anomaly method must be zscore, backend, or both",
			"method", s.Anomaly.Method)
	}
	if s.Anomaly.ZScoreThreshold <= 0 {
		return errs.New(errs.KindConfiguration, "anomaly zscore_threshold must be positive")
	}
	if s.Anomaly.MinPoints < 2 {
		return errs.New(errs.KindConfiguration, "anomaly min_points must be at least 2")
	}
	if len(s.Compliance.RequiredTags) == 0 {
		return errs.New(errs.KindConfiguration, "at least one required tag key must be configured")
	}
	for _, tag := range s.Compliance.RequiredTags {
		if len(tag) > 64 {
			return errs.New(errs.KindConfiguration, "required tag key exceeds 64 characters", "tag", tag)
		}
	}
	if s.Thresholds.DailyWarning <= 0 || s.Thresholds.MonthlyWarning <= 0 {
		return errs.New(errs.KindConfiguration, "cost thresholds must be positive")
	}
	switch strings.ToLower(s.Observe.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errs.New(errs.KindConfiguration, "unknown log level", "level", s.Observe.LogLevel)
	}
	return nil
}

// HasStaticKeys reports whether a full static key pair is configured.
func (s *Settings) HasStaticKeys() bool {
	return s.AWS.AccessKeyID != "" && s.AWS.SecretAccessKey != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvStrict expands ${VAR} references in config file text. A reference
// to a variable missing from the environment is an error rather than a silent
// empty string; $$ emits a literal $.
func expandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00FINOPS_CONFIG_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	var missing []string
	seen := make(map[string]bool)
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := match[1]
		if _, ok := os.LookupEnv(key); !ok && !seen[key] {
			seen[key] = true
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	s = envVarPattern.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
