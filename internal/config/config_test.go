package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "bot@example.com")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("ALERT_SENDER", "alerts@example.com")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
}

func TestLoadConfigFromEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "imap.example.com", cfg.Mail.IMAPHost)
	assert.Equal(t, 993, cfg.Mail.IMAPPort)
	assert.True(t, cfg.Mail.IMAPTLS)
	assert.Equal(t, "INBOX", cfg.Mail.Mailbox)
	assert.Equal(t, "alerts@example.com", cfg.Mail.Sender)
	assert.Equal(t, []string{"[Sentry]"}, cfg.Mail.ExcludedSubjects)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, "View details", cfg.Telegram.ButtonLabel)
	assert.Equal(t, "superset:8088", cfg.Link.InternalHost)
	assert.Equal(t, "superset.today", cfg.Link.PublicHost)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Poll.Lookback)
	assert.Equal(t, "imap.example.com:993", cfg.Mail.IMAPAddr())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IMAP_PORT", "1143")
	t.Setenv("IMAP_TLS", "false")
	t.Setenv("EXCLUDED_SUBJECTS", "[Sentry], [Grafana] ,,")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("LOOKBACK", "2m")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 1143, cfg.Mail.IMAPPort)
	assert.False(t, cfg.Mail.IMAPTLS)
	assert.Equal(t, []string{"[Sentry]", "[Grafana]"}, cfg.Mail.ExcludedSubjects)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Poll.Lookback)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	content := `
imap_host = "mail.internal"
imap_username = "bot@internal"
imap_password = "pw"
alert_sender = "superset@internal"
telegram_token = "42:token"
telegram_chat_id = 777
excluded_subjects = ["[Sentry]", "[Test]"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mail.internal", cfg.Mail.IMAPHost)
	assert.Equal(t, int64(777), cfg.Telegram.ChatID)
	assert.Equal(t, []string{"[Sentry]", "[Test]"}, cfg.Mail.ExcludedSubjects)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ALERT_BRIDGE_TEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ALERT_BRIDGE_TEST_KEY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("ALERT_BRIDGE_TEST_KEY"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Mail: MailConfig{
				IMAPHost:     "imap.example.com",
				IMAPPort:     993,
				IMAPUsername: "bot",
				IMAPPassword: "pw",
				Mailbox:      "INBOX",
				Sender:       "alerts@example.com",
			},
			Telegram: TelegramConfig{Token: "t", ChatID: 1, ImagePath: "img.png"},
			Poll:     PollConfig{Interval: 30 * time.Second, Lookback: 5 * time.Minute, IOTimeout: 30 * time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Mail.IMAPHost = "" }, wantErr: "IMAP_HOST"},
		{name: "bad port", mutate: func(c *Config) { c.Mail.IMAPPort = 70000 }, wantErr: "IMAP_PORT"},
		{name: "missing password", mutate: func(c *Config) { c.Mail.IMAPPassword = "" }, wantErr: "IMAP_PASSWORD"},
		{name: "missing sender", mutate: func(c *Config) { c.Mail.Sender = "" }, wantErr: "ALERT_SENDER"},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "TELEGRAM_TOKEN"},
		{name: "missing chat", mutate: func(c *Config) { c.Telegram.ChatID = 0 }, wantErr: "TELEGRAM_CHAT_ID"},
		{name: "zero interval", mutate: func(c *Config) { c.Poll.Interval = 0 }, wantErr: "POLL_INTERVAL"},
		{name: "short lookback", mutate: func(c *Config) { c.Poll.Lookback = 45 * time.Second }, wantErr: "LOOKBACK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
