package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/msg-to-imap/mapi"
)

// Config captures all command-line options required to run the importer.
type Config struct {
	Input              string
	Recursive          bool
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	SkipExisting       bool
	MboxOut            string
	StateDir           string
	StateBackend       string
	DryRun             bool
	FailFast           bool
	LogLevel           string
	LogDir             string
	CodePage           int
	MaxDepth           int
	NormalizeOrder     bool
	Progress           bool
	IncludeHeader      []string
	IncludeBody        []string
	ExcludeHeader      []string
	ExcludeBody        []string
}

// UseIMAP reports whether messages go to an IMAP server rather than an
// mbox archive.
func (c Config) UseIMAP() bool {
	return c.MboxOut == ""
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path to a .msg file or a directory of .msg files")
	flags.Bool("recursive", false, "Descend into subdirectories of --input")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder for imported mail")
	flags.Bool("skip-existing", false, "Skip messages whose Message-Id already exists in the target folder")
	flags.String("mbox-out", "", "Write messages to this mbox file instead of an IMAP server")
	flags.String("state-dir", defaultStateDir, "Directory for incremental sync state files")
	flags.String("state-backend", "jsonl", "State store: jsonl or sqlite")
	flags.Bool("dry-run", false, "Simulate the sync and emit stats without delivering")
	flags.Bool("fail-fast", false, "Abort the run at the first .msg file that cannot be decoded")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.Int("code-page", mapi.DefaultCodePage, "Code page for 8-bit strings when a message declares none")
	flags.Int("max-depth", 8, "Maximum nesting of attached messages")
	flags.Bool("normalize-order", false, "Sort recipients and attachments by index instead of container order")
	flags.Bool("progress", true, "Show a progress bar at log level info")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return cmd.MarkFlagRequired("input")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var (
		cfg  Config
		errs []error
	)
	str := func(name string, dst *string) {
		v, err := flags.GetString(name)
		errs = append(errs, err)
		*dst = v
	}
	boolean := func(name string, dst *bool) {
		v, err := flags.GetBool(name)
		errs = append(errs, err)
		*dst = v
	}
	integer := func(name string, dst *int) {
		v, err := flags.GetInt(name)
		errs = append(errs, err)
		*dst = v
	}
	array := func(name string, dst *[]string) {
		v, err := flags.GetStringArray(name)
		errs = append(errs, err)
		*dst = v
	}

	str("input", &cfg.Input)
	boolean("recursive", &cfg.Recursive)
	str("imap-host", &cfg.IMAPHost)
	integer("imap-port", &cfg.IMAPPort)
	str("imap-user", &cfg.IMAPUser)
	str("imap-pass", &cfg.IMAPPass)
	boolean("use-tls", &cfg.UseTLS)
	boolean("insecure-skip-verify", &cfg.InsecureSkipVerify)
	str("target-folder", &cfg.TargetFolder)
	boolean("skip-existing", &cfg.SkipExisting)
	str("mbox-out", &cfg.MboxOut)
	str("state-dir", &cfg.StateDir)
	str("state-backend", &cfg.StateBackend)
	boolean("dry-run", &cfg.DryRun)
	boolean("fail-fast", &cfg.FailFast)
	str("log-level", &cfg.LogLevel)
	str("log-dir", &cfg.LogDir)
	integer("code-page", &cfg.CodePage)
	integer("max-depth", &cfg.MaxDepth)
	boolean("normalize-order", &cfg.NormalizeOrder)
	boolean("progress", &cfg.Progress)
	array("include-header", &cfg.IncludeHeader)
	array("include-body", &cfg.IncludeBody)
	array("exclude-header", &cfg.ExcludeHeader)
	array("exclude-body", &cfg.ExcludeBody)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = dir
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)
	cfg.StateBackend = strings.ToLower(cfg.StateBackend)

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Input == "" {
		return fmt.Errorf("--input is required")
	}
	if cfg.UseIMAP() {
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required unless --mbox-out is set")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required unless --mbox-out is set")
		}
		if cfg.IMAPPass == "" && !cfg.DryRun {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.StateBackend {
	case "", "jsonl", "sqlite":
	default:
		return fmt.Errorf("invalid --state-backend: %s", cfg.StateBackend)
	}

	if _, err := mapi.CodePageEncoding(cfg.CodePage); err != nil {
		return fmt.Errorf("invalid --code-page %d: %w", cfg.CodePage, err)
	}
	if cfg.MaxDepth < 0 {
		return fmt.Errorf("--max-depth must not be negative")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".msg-to-imap", "state"), nil
}
