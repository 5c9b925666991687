// Package doctor runs environment health checks for `parabrain doctor`:
// config, data directory, database, model credentials, and connectors.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/modules"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	SkipUpstream bool // skip network connectivity checks (for CI/offline)
}

// Run executes all checks against the given config and returns a report.
func Run(ctx context.Context, cfg *config.Config, opts Options) *Report {
	report := &Report{}

	report.Checks = append(report.Checks, checkDataDir(cfg))
	report.Checks = append(report.Checks, checkDatabase(ctx, cfg))
	report.Checks = append(report.Checks, checkModuleRegistry(cfg))
	report.Checks = append(report.Checks, checkOpenAIKey(cfg))
	report.Checks = append(report.Checks, checkAPIAuth(cfg))
	report.Checks = append(report.Checks, checkTelegram(cfg)...)
	if !opts.SkipUpstream {
		report.Checks = append(report.Checks, checkUpstream(ctx))
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure the directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return CheckResult{
			Name: "database", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.DBPath(), err),
			Fix:     "Delete or repair the database file if it is corrupt",
		}
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := st.RecentLogs(ctx, 1)
	if err != nil {
		return CheckResult{
			Name: "database", Category: "config", Status: "fail",
			Message: fmt.Sprintf("query failed: %v", err),
		}
	}

	sizeStr := "empty"
	if fi, statErr := os.Stat(cfg.DBPath()); statErr == nil {
		sizeStr = fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024))
	}
	msg := fmt.Sprintf("%s (%s)", cfg.DBPath(), sizeStr)
	if len(rows) == 0 {
		msg += ", no captures yet"
	}
	return CheckResult{Name: "database", Category: "config", Status: "pass", Message: msg}
}

func checkModuleRegistry(cfg *config.Config) CheckResult {
	reg, err := modules.Load(cfg.ModulesPath())
	if err != nil {
		return CheckResult{
			Name: "module_registry", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.ModulesPath(), err),
			Fix:     "Fix the YAML in modules.yaml or remove the file",
		}
	}
	if len(reg.Modules) == 0 {
		return CheckResult{
			Name: "module_registry", Category: "config", Status: "pass",
			Message: "no custom modules defined",
		}
	}
	return CheckResult{
		Name: "module_registry", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%d module(s)", len(reg.Modules)),
	}
}

func checkOpenAIKey(cfg *config.Config) CheckResult {
	if cfg.OpenAIAPIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		return CheckResult{
			Name: "openai_key", Category: "config", Status: "fail",
			Message: "no OpenAI API key configured",
			Fix:     "Set PARABRAIN_OPENAI_API_KEY or OPENAI_API_KEY",
		}
	}
	return CheckResult{Name: "openai_key", Category: "config", Status: "pass", Message: "configured"}
}

func checkAPIAuth(cfg *config.Config) CheckResult {
	if cfg.APIKey == "" {
		return CheckResult{
			Name: "api_auth", Category: "config", Status: "warn",
			Message: "HTTP API auth is disabled",
			Fix:     "Set PARABRAIN_API_KEY before exposing the server",
		}
	}
	return CheckResult{Name: "api_auth", Category: "config", Status: "pass", Message: "API key set"}
}

func checkTelegram(cfg *config.Config) []CheckResult {
	if cfg.TelegramBotToken == "" {
		return []CheckResult{{
			Name: "telegram", Category: "connector", Status: "pass",
			Message: "not configured (API-only mode)",
		}}
	}

	var results []CheckResult
	results = append(results, CheckResult{
		Name: "telegram", Category: "connector", Status: "pass", Message: "bot token set",
	})
	if cfg.TelegramWebhookSecret == "" {
		results = append(results, CheckResult{
			Name: "telegram_webhook_secret", Category: "connector", Status: "warn",
			Message: "webhook accepts unsigned requests",
			Fix:     "Set PARABRAIN_TELEGRAM_WEBHOOK_SECRET",
		})
	}
	if len(cfg.TelegramAllowedChats) == 0 {
		results = append(results, CheckResult{
			Name: "telegram_allowed_chats", Category: "connector", Status: "warn",
			Message: "no chat allow-list; any chat can drive the bot",
			Fix:     "Set PARABRAIN_TELEGRAM_ALLOWED_CHATS",
		})
	}
	return results
}

func checkUpstream(ctx context.Context) CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://api.openai.com/v1", nil)
	if err != nil {
		return CheckResult{
			Name: "openai_reachable", Category: "network", Status: "fail",
			Message: err.Error(),
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name: "openai_reachable", Category: "network", Status: "fail",
			Message: fmt.Sprintf("connection failed: %v", err),
			Fix:     "Check network connectivity",
		}
	}
	resp.Body.Close()

	status := "pass"
	fix := ""
	if latency > 2*time.Second {
		status = "warn"
		fix = "High latency to the model provider will slow every capture"
	}
	return CheckResult{
		Name: "openai_reachable", Category: "network", Status: status,
		Message: fmt.Sprintf("api.openai.com, %dms", latency.Milliseconds()),
		Fix:     fix,
	}
}
