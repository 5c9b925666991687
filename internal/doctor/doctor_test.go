package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:      t.TempDir(),
		OpenAIAPIKey: "sk-test",
		APIKey:       "api-key",
	}
}

func checkByName(t *testing.T, report *Report, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return CheckResult{}
}

func TestRunHealthyConfigPasses(t *testing.T) {
	report := Run(context.Background(), testConfig(t), Options{SkipUpstream: true})
	assert.Equal(t, "pass", report.Status)
	assert.Zero(t, report.Summary.Fail)
	assert.Zero(t, report.Summary.Warn)
	assert.Equal(t, "pass", checkByName(t, report, "database").Status)
	assert.Equal(t, "pass", checkByName(t, report, "telegram").Status)
}

func TestRunFlagsMissingOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := testConfig(t)
	cfg.OpenAIAPIKey = ""

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})
	assert.Equal(t, "fail", report.Status)
	c := checkByName(t, report, "openai_key")
	assert.Equal(t, "fail", c.Status)
	assert.NotEmpty(t, c.Fix)
}

func TestRunWarnsOnDisabledAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKey = ""

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})
	assert.Equal(t, "warn", report.Status)
	assert.Equal(t, "warn", checkByName(t, report, "api_auth").Status)
}

func TestRunWarnsOnUnprotectedTelegram(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramBotToken = "123:abc"

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})
	assert.Equal(t, "warn", checkByName(t, report, "telegram_webhook_secret").Status)
	assert.Equal(t, "warn", checkByName(t, report, "telegram_allowed_chats").Status)

	cfg.TelegramWebhookSecret = "s"
	cfg.TelegramAllowedChats = []int64{42}
	report = Run(context.Background(), cfg, Options{SkipUpstream: true})
	assert.Equal(t, "pass", report.Status)
}

func TestRunFlagsBrokenModuleRegistry(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.ModulesPath(), []byte("modules: [broken"), 0o644))

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})
	assert.Equal(t, "fail", report.Status)
	assert.Equal(t, "fail", checkByName(t, report, "module_registry").Status)
}

func TestRunFlagsUnwritableDataDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	cfg := testConfig(t)
	locked := filepath.Join(cfg.DataDir, "locked")
	require.NoError(t, os.MkdirAll(locked, 0o500))
	cfg.DataDir = locked

	report := Run(context.Background(), cfg, Options{SkipUpstream: true})
	assert.Equal(t, "fail", checkByName(t, report, "data_dir_writable").Status)
}
