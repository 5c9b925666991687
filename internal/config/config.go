// Package config holds operator-level configuration for a PARA-Brain process.
//
// Everything here is infrastructure or tuning set by whoever deploys the
// assistant: store location, model names, channel credentials, and the
// decision thresholds of the capture pipeline. Values come from env vars
// (PARABRAIN_*) or an optional parabrain.config.yaml; the result is an
// immutable struct built once by Load and passed into every component.
// Pipeline code never reads the environment directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the PARABRAIN_ prefix
// (e.g. "confidence_threshold" → PARABRAIN_CONFIDENCE_THRESHOLD) and to a
// YAML field in parabrain.config.yaml.
const (
	KeyDataDir              = "data_dir"
	KeyListenAddr           = "listen_addr"
	KeyAPIKey               = "api_key"
	KeyOpenAIAPIKey         = "openai_api_key"
	KeyClassifierModel      = "classifier_model"
	KeyEmbeddingModel       = "embedding_model"
	KeyEmbeddingFallback    = "embedding_fallback_model"
	KeyVisionModel          = "vision_model"
	KeyTelegramBotToken     = "telegram_bot_token"
	KeyTelegramSecret       = "telegram_webhook_secret"
	KeyTelegramAllowedChats = "telegram_allowed_chats"
	KeyConfidenceThreshold  = "confidence_threshold"
	KeySimilarityThreshold  = "similarity_threshold"
	KeyFinanceThreshold     = "finance_confidence_threshold"
	KeyAutoCapturePlan      = "auto_capture_plan"
	KeyAutoCreateProjects   = "auto_create_projects"
	KeyStalenessWindowSec   = "processing_staleness_sec"
	KeyImageMaxBytes        = "image_max_bytes"
	KeyDedupLookback        = "dedup_lookback_hours"
	KeyDefaultTimezone      = "default_timezone"
	KeyDigestCron           = "digest_cron"
	KeyDigestEnabled        = "digest_enabled"
)

// Defaults for the decision thresholds. These are the documented knobs of
// the pipeline; all are overridable without code changes.
const (
	DefaultListenAddr         = ":8787"
	DefaultClassifierModel    = "gpt-4o-mini"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingFallback  = "text-embedding-ada-002"
	DefaultVisionModel        = "gpt-4o-mini"
	DefaultConfidence         = 0.72
	DefaultSimilarity         = 0.90
	DefaultFinanceConfidence  = 0.55
	DefaultStalenessSec       = 90
	DefaultImageMaxBytes      = 2_621_440 // 2.5 MB
	DefaultDedupLookbackHours = 48
	DefaultTimezone           = "Asia/Bangkok"
	DefaultDigestCron         = "0 20 * * *"
	DefaultLookupTimeout      = 4 * time.Second
	DefaultClassifyTimeout    = 45 * time.Second
	DefaultConversationWindow = 30 * time.Minute
	DefaultConversationTurns  = 3
)

// Config holds resolved configuration for one process.
type Config struct {
	DataDir    string // Base directory for all state (~/.parabrain)
	ListenAddr string // HTTP bind address
	APIKey     string // API key for the /v1 endpoints (empty disables auth)

	OpenAIAPIKey           string
	ClassifierModel        string
	EmbeddingModel         string
	EmbeddingFallbackModel string
	VisionModel            string

	TelegramBotToken      string
	TelegramWebhookSecret string
	TelegramAllowedChats  []int64 // empty allows all chats

	// Decision thresholds. See package doc for provenance.
	ConfidenceThreshold float64 // below this, writes need confirmation
	SimilarityThreshold float64 // semantic dedup cutoff
	FinanceThreshold    float64 // vision finance-document cutoff
	AutoCapturePlan     bool    // planning requests may upgrade to task-create
	AutoCreateProjects  bool    // executor may create missing parent projects

	StalenessWindow time.Duration // processing rows older than this are reclaimable
	ImageMaxBytes   int64         // inbound image ceiling, checked before analysis
	DedupLookback   time.Duration // exact-message lookback window
	DefaultTimezone string        // IANA name used when a request carries none

	LookupTimeout      time.Duration // budget for simple outbound lookups
	ClassifyTimeout    time.Duration // budget for the classifier call
	ConversationWindow time.Duration // same-channel continuity window
	ConversationTurns  int           // max prior turns loaded

	DigestCron    string
	DigestEnabled bool
}

// DBPath returns the full path to the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "parabrain.db")
}

// ModulesPath returns the path to the optional custom-modules YAML file.
func (c *Config) ModulesPath() string {
	return filepath.Join(c.DataDir, "modules.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// Location resolves the configured default timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func init() {
	viper.SetEnvPrefix("PARABRAIN")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyClassifierModel, DefaultClassifierModel)
	viper.SetDefault(KeyEmbeddingModel, DefaultEmbeddingModel)
	viper.SetDefault(KeyEmbeddingFallback, DefaultEmbeddingFallback)
	viper.SetDefault(KeyVisionModel, DefaultVisionModel)
	viper.SetDefault(KeyConfidenceThreshold, DefaultConfidence)
	viper.SetDefault(KeySimilarityThreshold, DefaultSimilarity)
	viper.SetDefault(KeyFinanceThreshold, DefaultFinanceConfidence)
	viper.SetDefault(KeyAutoCapturePlan, true)
	viper.SetDefault(KeyAutoCreateProjects, true)
	viper.SetDefault(KeyStalenessWindowSec, DefaultStalenessSec)
	viper.SetDefault(KeyImageMaxBytes, DefaultImageMaxBytes)
	viper.SetDefault(KeyDedupLookback, DefaultDedupLookbackHours)
	viper.SetDefault(KeyDefaultTimezone, DefaultTimezone)
	viper.SetDefault(KeyDigestCron, DefaultDigestCron)
	viper.SetDefault(KeyDigestEnabled, false)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:                resolveDataDir(),
		ListenAddr:             viper.GetString(KeyListenAddr),
		APIKey:                 viper.GetString(KeyAPIKey),
		OpenAIAPIKey:           viper.GetString(KeyOpenAIAPIKey),
		ClassifierModel:        viper.GetString(KeyClassifierModel),
		EmbeddingModel:         viper.GetString(KeyEmbeddingModel),
		EmbeddingFallbackModel: viper.GetString(KeyEmbeddingFallback),
		VisionModel:            viper.GetString(KeyVisionModel),
		TelegramBotToken:       viper.GetString(KeyTelegramBotToken),
		TelegramWebhookSecret:  viper.GetString(KeyTelegramSecret),
		ConfidenceThreshold:    viper.GetFloat64(KeyConfidenceThreshold),
		SimilarityThreshold:    viper.GetFloat64(KeySimilarityThreshold),
		FinanceThreshold:       viper.GetFloat64(KeyFinanceThreshold),
		AutoCapturePlan:        viper.GetBool(KeyAutoCapturePlan),
		AutoCreateProjects:     viper.GetBool(KeyAutoCreateProjects),
		StalenessWindow:        time.Duration(viper.GetInt(KeyStalenessWindowSec)) * time.Second,
		ImageMaxBytes:          viper.GetInt64(KeyImageMaxBytes),
		DedupLookback:          time.Duration(viper.GetInt(KeyDedupLookback)) * time.Hour,
		DefaultTimezone:        viper.GetString(KeyDefaultTimezone),
		LookupTimeout:          DefaultLookupTimeout,
		ClassifyTimeout:        DefaultClassifyTimeout,
		ConversationWindow:     DefaultConversationWindow,
		ConversationTurns:      DefaultConversationTurns,
		DigestCron:             viper.GetString(KeyDigestCron),
		DigestEnabled:          viper.GetBool(KeyDigestEnabled),
	}

	for _, id := range viper.GetIntSlice(KeyTelegramAllowedChats) {
		cfg.TelegramAllowedChats = append(cfg.TelegramAllowedChats, int64(id))
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parabrain"
	}
	return filepath.Join(home, ".parabrain")
}

func (c *Config) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1] (got %v)", c.ConfidenceThreshold)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1] (got %v)", c.SimilarityThreshold)
	}
	if c.FinanceThreshold < 0 || c.FinanceThreshold > 1 {
		return fmt.Errorf("finance_confidence_threshold must be in [0,1] (got %v)", c.FinanceThreshold)
	}
	if c.ImageMaxBytes <= 0 {
		return fmt.Errorf("image_max_bytes must be positive")
	}
	if c.StalenessWindow <= 0 {
		return fmt.Errorf("processing_staleness_sec must be positive")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("default_timezone %q: %w", c.DefaultTimezone, err)
	}
	return nil
}
