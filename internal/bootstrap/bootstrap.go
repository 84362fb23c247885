package bootstrap

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tamoray/tamoray-api/internal/config"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root          string
	Environment   string
	AdminEmail    string
	HTTPAddress   string
	LedgerPath    string
	HistoryPath   string
	AuthSecret    string
	MediaBaseURL  string
	ThumbnailCost int64
	Force         bool
}

// Init scaffolds configuration files for the API daemon.
func Init(opts InitOptions) error {
	if err := applyDefaults(&opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	envPath := filepath.Join(opts.Root, "config", opts.Environment, "tamoray.ini")
	if err := writeFile(envPath, envTemplate(opts), opts.Force); err != nil {
		return err
	}

	return nil
}

func applyDefaults(opts *InitOptions) error {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.AdminEmail) == "" {
		opts.AdminEmail = "admin@tamoray.local"
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = ":8080"
	}
	if strings.TrimSpace(opts.LedgerPath) == "" {
		opts.LedgerPath = config.DefaultLedgerPath()
	}
	if strings.TrimSpace(opts.HistoryPath) == "" {
		opts.HistoryPath = config.DefaultHistoryPath()
	}
	if strings.TrimSpace(opts.MediaBaseURL) == "" {
		opts.MediaBaseURL = "https://media.tamoray.local"
	}
	if opts.ThumbnailCost <= 0 {
		opts.ThumbnailCost = 5
	}
	if strings.TrimSpace(opts.AuthSecret) == "" {
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate auth secret: %w", err)
		}
		opts.AuthSecret = secret
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Tamoray API settings
environment=%s
admin_email=%s
auth_secret=%s
`, opts.Environment, opts.AdminEmail, opts.AuthSecret)
}

func envTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
http_address=%s
log_level=info
# Dash '-' disables file output.
log_file=logs/tamorayd.log
ledger_path=%s
history_path=%s
media_base_url=%s
thumbnail_cost=%d
`, opts.Environment, opts.HTTPAddress, opts.LedgerPath, opts.HistoryPath, opts.MediaBaseURL, opts.ThumbnailCost)
}

// Validate ensures required fields are present without modifying files.
func Validate(opts InitOptions) error {
	if err := applyDefaults(&opts); err != nil {
		return err
	}
	if strings.TrimSpace(opts.AdminEmail) == "" {
		return errors.New("admin email is required")
	}
	if !strings.Contains(opts.AdminEmail, "@") {
		return errors.New("admin email must contain '@'")
	}
	return nil
}
