package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/tamoray.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for the Tamoray API daemon. Values come
// from config/setting.ini merged with config/<env>/tamoray.ini; TAMORAY_*
// environment variables win over both.
type Config struct {
	Environment string
	HTTPAddress string

	LogFile  string
	LogLevel string

	AuthSecret   string
	AuthDisabled bool
	AdminEmail   string

	// LedgerPath is either a SQLite file path or a postgres:// DSN.
	LedgerPath  string
	HistoryPath string

	PlansFile     string
	ThumbnailCost int64
	MediaBaseURL  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Connection pool knobs, used only by the PostgreSQL stores.
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnLifetimeMins int
	DBConnIdleTimeMins int
}

// Load reads the current environment and assembles the daemon config.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := Config{
		Environment:  s.Environment,
		HTTPAddress:  firstNonEmpty(os.Getenv("TAMORAY_HTTP_ADDRESS"), merged["http_address"], ":8080"),
		LogFile:      firstNonEmpty(os.Getenv("TAMORAY_LOG_FILE"), merged["log_file"]),
		LogLevel:     firstNonEmpty(os.Getenv("TAMORAY_LOG_LEVEL"), merged["log_level"], "info"),
		AuthSecret:   firstNonEmpty(os.Getenv("TAMORAY_AUTH_SECRET"), merged["auth_secret"]),
		AuthDisabled: parseOptionalBool(firstNonEmpty(os.Getenv("TAMORAY_AUTH_DISABLED"), merged["auth_disabled"]), false),
		AdminEmail:   firstNonEmpty(os.Getenv("TAMORAY_ADMIN_EMAIL"), merged["admin_email"]),
		LedgerPath:   firstNonEmpty(os.Getenv("TAMORAY_LEDGER_PATH"), merged["ledger_path"], DefaultLedgerPath()),
		HistoryPath:  firstNonEmpty(os.Getenv("TAMORAY_HISTORY_PATH"), merged["history_path"], DefaultHistoryPath()),
		PlansFile:    firstNonEmpty(os.Getenv("TAMORAY_PLANS_FILE"), merged["plans_file"]),
		MediaBaseURL: firstNonEmpty(os.Getenv("TAMORAY_MEDIA_BASE_URL"), merged["media_base_url"]),

		OpenAIAPIKey:  firstNonEmpty(os.Getenv("TAMORAY_OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL: firstNonEmpty(os.Getenv("TAMORAY_OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIModel:   firstNonEmpty(os.Getenv("TAMORAY_OPENAI_MODEL"), merged["openai_model"]),

		DBMaxOpenConns:     parseOptionalInt(merged["db_max_open_conns"], 10),
		DBMaxIdleConns:     parseOptionalInt(merged["db_max_idle_conns"], 5),
		DBConnLifetimeMins: parseOptionalInt(merged["db_conn_lifetime_minutes"], 30),
		DBConnIdleTimeMins: parseOptionalInt(merged["db_conn_idle_minutes"], 10),
	}

	cost := firstNonEmpty(os.Getenv("TAMORAY_THUMBNAIL_COST"), merged["thumbnail_cost"], "5")
	parsed, err := strconv.ParseInt(strings.TrimSpace(cost), 10, 64)
	if err != nil || parsed <= 0 {
		return Config{}, fmt.Errorf("invalid thumbnail_cost %q: must be a positive integer", cost)
	}
	cfg.ThumbnailCost = parsed

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects configurations the daemon cannot safely run with.
func (c Config) validate() error {
	if !c.AuthDisabled && strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("auth_secret is required unless auth_disabled is set")
	}
	if c.LedgerPath == "" {
		return errors.New("ledger_path is required")
	}
	if c.HistoryPath == "" {
		return errors.New("history_path is required")
	}
	return nil
}

// IsPostgres reports whether the path is a PostgreSQL DSN rather than a
// SQLite file path.
func IsPostgres(path string) bool {
	return strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultLedgerPath returns the fallback ledger location under the user's
// home directory.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ledger.db"
	}
	return filepath.Join(home, ".tamoray", "ledger.db")
}

// DefaultHistoryPath returns the fallback generation history location.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".tamoray", "history.db")
}
