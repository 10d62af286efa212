package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	goversion "github.com/hashicorp/go-version"
	"github.com/tailscale/hujson"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/vibesec/vibesec/pkg/logme"
)

// ConfigFileNames are tried in order inside the project root. The .json
// variant may contain comments and trailing commas.
var ConfigFileNames = []string{
	"vibesec.config.yaml",
	"vibesec.config.yml",
	"vibesec.config.json",
}

// Config is the immutable-per-run policy snapshot consumed by every scanner.
// Severities are plain strings here so the package stays free of the analysis
// types; scanners and the runner map them.
type Config struct {
	Enabled        *bool                      `yaml:"enabled" json:"enabled"`
	MinToolVersion string                     `yaml:"minToolVersion" json:"minToolVersion,omitempty"`
	SecretScanner  SecretScannerConfig        `yaml:"secretScanner" json:"secretScanner"`
	SQLScanner     SQLScannerConfig           `yaml:"sqlScanner" json:"sqlScanner"`
	RLSScanner     RLSScannerConfig           `yaml:"rlsScanner" json:"rlsScanner"`
	APIKeyGuardian APIKeyGuardianConfig       `yaml:"apiKeyGuardian" json:"apiKeyGuardian"`
	Watcher        WatcherConfig              `yaml:"watcher" json:"watcher"`
	Scanners       map[string]ScannerOverride `yaml:"scanners" json:"scanners,omitempty"`
}

type SensitivePattern struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Severity string `yaml:"severity" json:"severity"`
	Message  string `yaml:"message" json:"message"`
}

type SecretScannerConfig struct {
	EnvFiles          []string           `yaml:"envFiles" json:"envFiles"`
	ClientPrefixes    []string           `yaml:"clientPrefixes" json:"clientPrefixes"`
	SensitivePatterns []SensitivePattern `yaml:"sensitivePatterns" json:"sensitivePatterns"`
}

type SQLScannerConfig struct {
	ScanDirs    []string `yaml:"scanDirs" json:"scanDirs"`
	Extensions  []string `yaml:"extensions" json:"extensions"`
	ExcludeDirs []string `yaml:"excludeDirs" json:"excludeDirs"`
}

// AuthorityConfig selects and configures the RLS authority backend. Kind is
// "http" or "postgres"; an empty kind means no authority is configured.
type AuthorityConfig struct {
	Kind        string `yaml:"kind" json:"kind"`
	URL         string `yaml:"url" json:"url,omitempty"`
	ServiceKey  string `yaml:"serviceKey" json:"serviceKey,omitempty"`
	DatabaseURL string `yaml:"databaseUrl" json:"databaseUrl,omitempty"`
	TimeoutMs   int    `yaml:"timeoutMs" json:"timeoutMs,omitempty"`
}

type RLSScannerConfig struct {
	Enabled           *bool           `yaml:"enabled" json:"enabled"`
	ScanDirs          []string        `yaml:"scanDirs" json:"scanDirs"`
	Extensions        []string        `yaml:"extensions" json:"extensions"`
	ExcludeDirs       []string        `yaml:"excludeDirs" json:"excludeDirs"`
	Authority         AuthorityConfig `yaml:"authority" json:"authority"`
	WhitelistedTables []string        `yaml:"whitelistedTables" json:"whitelistedTables"`
}

type APIKeyGuardianConfig struct {
	ClientPathGlobs []string `yaml:"clientPathGlobs" json:"clientPathGlobs"`
}

type WatcherConfig struct {
	DebounceMs              int      `yaml:"debounceMs" json:"debounceMs"`
	AdditionalWatchPatterns []string `yaml:"additionalWatchPatterns" json:"additionalWatchPatterns"`
}

// ScannerOverride carries per-scanner and per-rule policy overrides applied
// by the runner before a scan.
type ScannerOverride struct {
	Enabled  *bool                   `yaml:"enabled" json:"enabled"`
	Severity string                  `yaml:"severity" json:"severity,omitempty"`
	Rules    map[string]RuleOverride `yaml:"rules" json:"rules,omitempty"`
}

type RuleOverride struct {
	Enabled  *bool  `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity,omitempty"`
}

func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *RLSScannerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Default returns the hard-coded fallback policy used when no config file
// exists or the file fails to load.
func Default() *Config {
	return &Config{
		SecretScanner: SecretScannerConfig{
			EnvFiles:       []string{".env", ".env.*"},
			ClientPrefixes: []string{"NEXT_PUBLIC_", "VITE_", "REACT_APP_"},
			SensitivePatterns: []SensitivePattern{
				{Pattern: `(?i)(database_url|connection_string|dsn)`, Severity: "critical", Message: "Database connection strings must never be client-exposed"},
				{Pattern: `(?i)service_role`, Severity: "critical", Message: "Service-role keys bypass row level security"},
				{Pattern: `(?i)(secret|private)`, Severity: "critical", Message: "Keys named secret or private must stay server-side"},
				{Pattern: `(?i)(password|passwd)`, Severity: "critical", Message: "Passwords must never be client-exposed"},
				{Pattern: `(?i)(api_?key|token)`, Severity: "warning", Message: "API keys and tokens are usually server-side credentials"},
			},
		},
		SQLScanner: SQLScannerConfig{
			ScanDirs:    []string{"."},
			Extensions:  []string{".ts", ".tsx", ".js", ".jsx"},
			ExcludeDirs: []string{"node_modules", ".next", ".git", "dist", "build"},
		},
		RLSScanner: RLSScannerConfig{
			ScanDirs:    []string{"."},
			Extensions:  []string{".ts", ".tsx", ".js", ".jsx"},
			ExcludeDirs: []string{"node_modules", ".next", ".git", "dist", "build"},
			Authority:   AuthorityConfig{TimeoutMs: 10000},
		},
		APIKeyGuardian: APIKeyGuardianConfig{
			ClientPathGlobs: []string{
				"**/components/**",
				"**/app/**",
				"**/pages/**",
				"src/client/**",
			},
		},
		Watcher: WatcherConfig{DebounceMs: 500},
	}
}

// Load reads the project's config file, falling back to Default on any
// failure. Load never returns an error: a broken config is an operator
// diagnostic, not a scan abort.
func Load(root string) *Config {
	for _, name := range ConfigFileNames {
		path := filepath.Join(root, name)
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		cfg, err := parse(name, b)
		if err != nil {
			logme.Errorln(fmt.Errorf("couldn't read %s, using default policy: %w", name, err))
			return Default()
		}
		cfg.applyDefaults()
		return cfg
	}

	logme.Debugln("no config file found, using default policy")
	return Default()
}

// LoadFile reads an explicit config path, with the same never-fail contract
// as Load.
func LoadFile(path string) *Config {
	b, err := os.ReadFile(path)
	if err != nil {
		logme.Errorln(fmt.Errorf("couldn't read %s, using default policy: %w", path, err))
		return Default()
	}
	cfg, err := parse(filepath.Base(path), b)
	if err != nil {
		logme.Errorln(fmt.Errorf("couldn't parse %s, using default policy: %w", path, err))
		return Default()
	}
	cfg.applyDefaults()
	return cfg
}

func parse(name string, b []byte) (*Config, error) {
	var cfg Config

	if filepath.Ext(name) == ".json" {
		std, err := hujson.Standardize(b)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonc: %w", err)
		}
		if err := validateSchema(std); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateSchema(std []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(std),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("config does not match schema: %v", result.Errors())
	}
	return nil
}

// applyDefaults fills unset sections so a sparse config file still carries a
// complete policy.
func (c *Config) applyDefaults() {
	def := Default()

	if len(c.SecretScanner.EnvFiles) == 0 {
		c.SecretScanner.EnvFiles = def.SecretScanner.EnvFiles
	}
	if len(c.SecretScanner.ClientPrefixes) == 0 {
		c.SecretScanner.ClientPrefixes = def.SecretScanner.ClientPrefixes
	}
	if len(c.SecretScanner.SensitivePatterns) == 0 {
		c.SecretScanner.SensitivePatterns = def.SecretScanner.SensitivePatterns
	}
	if len(c.SQLScanner.ScanDirs) == 0 {
		c.SQLScanner.ScanDirs = def.SQLScanner.ScanDirs
	}
	if len(c.SQLScanner.Extensions) == 0 {
		c.SQLScanner.Extensions = def.SQLScanner.Extensions
	}
	if len(c.SQLScanner.ExcludeDirs) == 0 {
		c.SQLScanner.ExcludeDirs = def.SQLScanner.ExcludeDirs
	}
	if len(c.RLSScanner.ScanDirs) == 0 {
		c.RLSScanner.ScanDirs = def.RLSScanner.ScanDirs
	}
	if len(c.RLSScanner.Extensions) == 0 {
		c.RLSScanner.Extensions = def.RLSScanner.Extensions
	}
	if len(c.RLSScanner.ExcludeDirs) == 0 {
		c.RLSScanner.ExcludeDirs = def.RLSScanner.ExcludeDirs
	}
	if c.RLSScanner.Authority.TimeoutMs <= 0 {
		c.RLSScanner.Authority.TimeoutMs = def.RLSScanner.Authority.TimeoutMs
	}
	if len(c.APIKeyGuardian.ClientPathGlobs) == 0 {
		c.APIKeyGuardian.ClientPathGlobs = def.APIKeyGuardian.ClientPathGlobs
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = def.Watcher.DebounceMs
	}
}

// CheckToolVersion verifies the running build satisfies the config's
// minToolVersion constraint.
func (c *Config) CheckToolVersion(current string) error {
	if c.MinToolVersion == "" {
		return nil
	}

	minimum, err := goversion.NewVersion(c.MinToolVersion)
	if err != nil {
		return fmt.Errorf("invalid minToolVersion %q: %w", c.MinToolVersion, err)
	}
	running, err := goversion.NewVersion(current)
	if err != nil {
		return fmt.Errorf("invalid tool version %q: %w", current, err)
	}
	if running.LessThan(minimum) {
		return fmt.Errorf("config requires vibesec >= %s, running %s", minimum, running)
	}
	return nil
}
