package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration keys. In the environment they are upper-cased
// (IMAP_HOST), in a config file they are used as written (imap_host).
const (
	keyIMAPHost         = "imap_host"
	keyIMAPPort         = "imap_port"
	keyIMAPTLS          = "imap_tls"
	keyIMAPUsername     = "imap_username"
	keyIMAPPassword     = "imap_password"
	keyIMAPMailbox      = "imap_mailbox"
	keyAlertSender      = "alert_sender"
	keyExcludedSubjects = "excluded_subjects"
	keyTelegramToken    = "telegram_token"
	keyTelegramChatID   = "telegram_chat_id"
	keyLinkInternalHost = "link_internal_host"
	keyLinkPublicHost   = "link_public_host"
	keyButtonLabel      = "button_label"
	keyImagePath        = "image_path"
	keyPollInterval     = "poll_interval"
	keyLookback         = "lookback"
	keyIOTimeout        = "io_timeout"
	keyLogLevel         = "log_level"
)

// Config holds the application configuration
type Config struct {
	LogLevel string

	Mail     MailConfig
	Telegram TelegramConfig
	Link     LinkConfig
	Poll     PollConfig
}

// MailConfig holds the mailbox connection and filter settings
type MailConfig struct {
	// IMAP settings
	IMAPHost     string
	IMAPPort     int
	IMAPTLS      bool
	IMAPUsername string
	IMAPPassword string
	Mailbox      string

	// Only messages whose From header contains Sender are forwarded
	Sender string
	// Messages whose Subject contains any of these markers are ignored
	ExcludedSubjects []string
}

// TelegramConfig holds the chat destination settings
type TelegramConfig struct {
	Token       string
	ChatID      int64
	ButtonLabel string
	// ImagePath is where the screenshot is written before upload
	ImagePath string
}

// LinkConfig describes the host rewrite applied to alert links
type LinkConfig struct {
	InternalHost string
	PublicHost   string
}

// PollConfig holds the scheduler timing
type PollConfig struct {
	Interval  time.Duration
	Lookback  time.Duration
	IOTimeout time.Duration
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set win. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables and, when
// path is not empty, from a config file. Environment variables take
// precedence over the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		LogLevel: v.GetString(keyLogLevel),
		Mail: MailConfig{
			IMAPHost:         v.GetString(keyIMAPHost),
			IMAPPort:         v.GetInt(keyIMAPPort),
			IMAPTLS:          v.GetBool(keyIMAPTLS),
			IMAPUsername:     v.GetString(keyIMAPUsername),
			IMAPPassword:     v.GetString(keyIMAPPassword),
			Mailbox:          v.GetString(keyIMAPMailbox),
			Sender:           v.GetString(keyAlertSender),
			ExcludedSubjects: getList(v, keyExcludedSubjects),
		},
		Telegram: TelegramConfig{
			Token:       v.GetString(keyTelegramToken),
			ChatID:      v.GetInt64(keyTelegramChatID),
			ButtonLabel: v.GetString(keyButtonLabel),
			ImagePath:   v.GetString(keyImagePath),
		},
		Link: LinkConfig{
			InternalHost: v.GetString(keyLinkInternalHost),
			PublicHost:   v.GetString(keyLinkPublicHost),
		},
		Poll: PollConfig{
			Interval:  v.GetDuration(keyPollInterval),
			Lookback:  v.GetDuration(keyLookback),
			IOTimeout: v.GetDuration(keyIOTimeout),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyIMAPPort, 993)
	v.SetDefault(keyIMAPTLS, true)
	v.SetDefault(keyIMAPMailbox, "INBOX")
	v.SetDefault(keyExcludedSubjects, "[Sentry]")
	v.SetDefault(keyLinkInternalHost, "superset:8088")
	v.SetDefault(keyLinkPublicHost, "superset.today")
	v.SetDefault(keyButtonLabel, "View details")
	v.SetDefault(keyImagePath, "temp_image.png")
	v.SetDefault(keyPollInterval, 30*time.Second)
	v.SetDefault(keyLookback, 5*time.Minute)
	v.SetDefault(keyIOTimeout, 30*time.Second)
}

// getList reads a list either as a native list from a config file or as
// a comma separated string from the environment
func getList(v *viper.Viper, key string) []string {
	var items []string
	switch raw := v.Get(key).(type) {
	case string:
		items = strings.Split(raw, ",")
	default:
		items = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mail.IMAPHost == "" {
		return fmt.Errorf("IMAP_HOST is required")
	}
	if c.Mail.IMAPPort < 1 || c.Mail.IMAPPort > 65535 {
		return fmt.Errorf("invalid IMAP_PORT: %d", c.Mail.IMAPPort)
	}
	if c.Mail.IMAPUsername == "" {
		return fmt.Errorf("IMAP_USERNAME is required")
	}
	if c.Mail.IMAPPassword == "" {
		return fmt.Errorf("IMAP_PASSWORD is required")
	}
	if c.Mail.Mailbox == "" {
		return fmt.Errorf("IMAP_MAILBOX must not be empty")
	}
	if c.Mail.Sender == "" {
		return fmt.Errorf("ALERT_SENDER is required")
	}
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	if c.Telegram.ImagePath == "" {
		return fmt.Errorf("IMAGE_PATH must not be empty")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.Poll.IOTimeout <= 0 {
		return fmt.Errorf("IO_TIMEOUT must be positive")
	}

	// A message that arrives just after a search must still be inside the
	// window on the next cycle.
	if floor := c.Poll.Interval + c.Poll.IOTimeout; c.Poll.Lookback < floor {
		return fmt.Errorf("LOOKBACK (%s) must be at least POLL_INTERVAL + IO_TIMEOUT (%s)", c.Poll.Lookback, floor)
	}

	return nil
}

// IMAPAddr returns the host:port of the mail server
func (m MailConfig) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", m.IMAPHost, m.IMAPPort)
}
