// Package config provides configuration loading from the environment and an optional file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/fgeck/gomysql-telegram/internal/services/compress"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that may set them.
var envBindings = map[string][]string{
	"telegram.bot_token":       {"BOT_TOKEN"},
	"telegram.chat_id":         {"BOT_DEST"},
	"telegram.api_url":         {"TELEGRAM_API_URL"},
	"telegram.max_retries":     {"SEND_MAX_RETRIES"},
	"telegram.retry_delay":     {"SEND_RETRY_DELAY"},
	"telegram.request_timeout": {"SEND_TIMEOUT"},
	"mysql.host":               {"MYSQL_HOST"},
	"mysql.port":               {"MYSQL_PORT"},
	"mysql.username":           {"MYSQL_USER"},
	"mysql.password":           {"MYSQL_PASSWORD"},
	"mysql.database":           {"MYSQL_DATABASE"},
	"mysql.dump_binary":        {"MYSQLDUMP_PATH"},
	"mysql.probe_timeout":      {"PROBE_TIMEOUT"},
	"mysql.dump_timeout":       {"DUMP_TIMEOUT"},
	"mysql.min_dump_size":      {"MIN_DUMP_SIZE"},
	"message":                  {"CUST_MSG"},
	"workspace.base_dir":       {"TMP_DIR"},
	"compression.codec":        {"COMPRESSION"},
	"wol.mac_address":          {"WOL_MAC"},
	"wol.broadcast_ip":         {"WOL_BROADCAST_IP"},
	"wol.timeout":              {"WOL_TIMEOUT"},
	"ssh_shutdown.host":        {"SSH_SHUTDOWN_HOST"},
	"ssh_shutdown.port":        {"SSH_SHUTDOWN_PORT"},
	"ssh_shutdown.username":    {"SSH_SHUTDOWN_USER"},
	"ssh_shutdown.key_path":    {"SSH_SHUTDOWN_KEY_PATH"},
	"ssh_shutdown.os":          {"SSH_SHUTDOWN_OS"},
}

// Parser handles configuration parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser bound to the process environment.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return &Parser{v: v}
}

// LoadDotEnv loads variables from a .env file without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads configuration from environment variables only.
func (p *Parser) LoadEnv() (*models.BackupConfig, error) {
	return p.parse()
}

// LoadFile loads configuration from a YAML file; environment variables take precedence.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading config file: %w", models.ErrConfig, err)
	}

	return p.parse()
}

// LoadReader loads configuration from YAML content (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: reading config: %w", models.ErrConfig, err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{}

	// Telegram (required).
	chatID, err := p.int64Value("telegram.chat_id")
	if err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, fmt.Errorf("%w: %s is required", models.ErrConfig, label("telegram.chat_id"))
	}
	cfg.Telegram = models.TelegramConfig{
		BotToken: p.str("telegram.bot_token"),
		ChatID:   chatID,
		APIURL:   p.str("telegram.api_url"),
	}
	if cfg.Telegram.MaxRetries, err = p.intValue("telegram.max_retries"); err != nil {
		return nil, err
	}
	if cfg.Telegram.RetryDelay, err = p.durationValue("telegram.retry_delay"); err != nil {
		return nil, err
	}
	if cfg.Telegram.RequestTimeout, err = p.durationValue("telegram.request_timeout"); err != nil {
		return nil, err
	}

	if cfg.Telegram.BotToken == "" {
		return nil, fmt.Errorf("%w: telegram.bot_token (BOT_TOKEN) is required", models.ErrConfig)
	}
	if cfg.Telegram.APIURL == "" {
		cfg.Telegram.APIURL = "https://api.telegram.org"
	}
	if cfg.Telegram.MaxRetries <= 0 {
		cfg.Telegram.MaxRetries = 3
	}
	if cfg.Telegram.RetryDelay <= 0 {
		cfg.Telegram.RetryDelay = 5 * time.Second
	}
	if cfg.Telegram.RequestTimeout <= 0 {
		cfg.Telegram.RequestTimeout = 5 * time.Minute
	}

	// MySQL (required).
	cfg.MySQL = models.MySQLConfig{
		Host:       p.str("mysql.host"),
		Username:   p.str("mysql.username"),
		Password:   p.str("mysql.password"),
		Database:   p.str("mysql.database"),
		DumpBinary: p.str("mysql.dump_binary"),
	}
	if cfg.MySQL.Port, err = p.intValue("mysql.port"); err != nil {
		return nil, err
	}
	if cfg.MySQL.ProbeTimeout, err = p.durationValue("mysql.probe_timeout"); err != nil {
		return nil, err
	}
	if cfg.MySQL.DumpTimeout, err = p.durationValue("mysql.dump_timeout"); err != nil {
		return nil, err
	}
	if cfg.MySQL.MinDumpSize, err = p.int64Value("mysql.min_dump_size"); err != nil {
		return nil, err
	}

	if cfg.MySQL.Username == "" {
		return nil, fmt.Errorf("%w: mysql.username (MYSQL_USER) is required", models.ErrConfig)
	}
	if cfg.MySQL.Password == "" {
		return nil, fmt.Errorf("%w: mysql.password (MYSQL_PASSWORD) is required", models.ErrConfig)
	}
	if cfg.MySQL.Host == "" {
		cfg.MySQL.Host = "localhost"
	}
	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.MySQL.DumpBinary == "" {
		cfg.MySQL.DumpBinary = "mysqldump"
	}
	if cfg.MySQL.ProbeTimeout <= 0 {
		cfg.MySQL.ProbeTimeout = 30 * time.Second
	}
	if cfg.MySQL.DumpTimeout <= 0 {
		cfg.MySQL.DumpTimeout = time.Hour
	}
	if cfg.MySQL.MinDumpSize <= 0 {
		cfg.MySQL.MinDumpSize = 1024
	}

	cfg.Message = p.str("message")

	// Workspace.
	cfg.Workspace.BaseDir = p.str("workspace.base_dir")
	if cfg.Workspace.BaseDir == "" {
		cfg.Workspace.BaseDir = os.TempDir()
	}

	// Compression.
	cfg.Compression.Codec = strings.ToLower(p.str("compression.codec"))
	if cfg.Compression.Codec == "" {
		cfg.Compression.Codec = compress.DefaultCodec
	}
	if _, err := compress.Lookup(cfg.Compression.Codec); err != nil {
		return nil, fmt.Errorf("%w: compression.codec must be one of: %s", models.ErrConfig, strings.Join(compress.Names(), ", "))
	}

	// Optional Wake-on-LAN of the database host.
	if mac := p.str("wol.mac_address"); mac != "" {
		cfg.WOL = &models.WOLConfig{
			MACAddress:  mac,
			BroadcastIP: p.str("wol.broadcast_ip"),
		}
		if cfg.WOL.Timeout, err = p.durationValue("wol.timeout"); err != nil {
			return nil, err
		}
		if cfg.WOL.PollInterval, err = p.durationValue("wol.poll_interval"); err != nil {
			return nil, err
		}
		if cfg.WOL.StabilizeWait, err = p.durationValue("wol.stabilize_wait"); err != nil {
			return nil, err
		}

		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
		cfg.WOL.TargetAddr = fmt.Sprintf("%s:%d", cfg.MySQL.Host, cfg.MySQL.Port)
	}

	// Optional SSH shutdown of the database host.
	if keyPath := p.str("ssh_shutdown.key_path"); keyPath != "" { //nolint:nestif // config parsing with defaults
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:     p.str("ssh_shutdown.host"),
			Username: p.str("ssh_shutdown.username"),
			KeyPath:  keyPath,
			OS:       p.str("ssh_shutdown.os"),
		}
		if cfg.SSHShutdown.Port, err = p.intValue("ssh_shutdown.port"); err != nil {
			return nil, err
		}
		if cfg.SSHShutdown.ShutdownDelay, err = p.intValue("ssh_shutdown.shutdown_delay"); err != nil {
			return nil, err
		}
		if cfg.SSHShutdown.Timeout, err = p.durationValue("ssh_shutdown.timeout"); err != nil {
			return nil, err
		}

		if cfg.SSHShutdown.Host == "" {
			cfg.SSHShutdown.Host = cfg.MySQL.Host
		}
		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.ShutdownDelay == 0 {
			cfg.SSHShutdown.ShutdownDelay = 1
		}
		if cfg.SSHShutdown.Timeout == 0 {
			cfg.SSHShutdown.Timeout = 30 * time.Second
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, fmt.Errorf("%w: ssh_shutdown.os must be one of: linux, windows", models.ErrConfig)
		}
	}

	return cfg, nil
}

// str returns the value for key. Environment values are used verbatim;
// file values have ${VAR} references expanded.
func (p *Parser) str(key string) string {
	for _, env := range envBindings[key] {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			return v
		}
	}
	return strings.TrimSpace(os.ExpandEnv(p.v.GetString(key)))
}

// label names key and the environment variables bound to it, for error messages.
func label(key string) string {
	if envs := envBindings[key]; len(envs) > 0 {
		return fmt.Sprintf("%s (%s)", key, strings.Join(envs, ", "))
	}
	return key
}

func (p *Parser) intValue(key string) (int, error) {
	n, err := p.int64Value(key)
	return int(n), err
}

func (p *Parser) int64Value(key string) (int64, error) {
	raw := strings.TrimSpace(p.str(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrConfig, label(key), raw)
	}
	return n, nil
}

func (p *Parser) durationValue(key string) (time.Duration, error) {
	raw := strings.TrimSpace(p.str(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration such as 30s or 5m, got %q", models.ErrConfig, label(key), raw)
	}
	return d, nil
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", models.ErrConfig)
	}

	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("%w: telegram.bot_token is required", models.ErrConfig)
	}

	if cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: telegram.chat_id is required", models.ErrConfig)
	}

	if cfg.MySQL.Username == "" || cfg.MySQL.Password == "" {
		return fmt.Errorf("%w: mysql credentials are required", models.ErrConfig)
	}

	if cfg.Workspace.BaseDir == "" {
		return fmt.Errorf("%w: workspace.base_dir is required", models.ErrConfig)
	}

	return nil
}
