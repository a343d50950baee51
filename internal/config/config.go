package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is looked up from the working directory upwards
const LocalConfigName = ".nacl-deps.toml"

// Manifest pin modes
const (
	PinNumber = "number"
	PinHash   = "hash"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Schedule      ScheduleConfig      `toml:"schedule"`
	LKGR          LKGRConfig          `toml:"lkgr"`
	Review        ReviewConfig        `toml:"review"`
	Notifications NotificationsConfig `toml:"notifications"`
	// Profiles maps a profile name (e.g. "nacl", "llvm") to what is bumped
	Profiles map[string]ProfileConfig `toml:"profiles"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	// Checkout is the downstream working copy holding the manifest
	Checkout       string `toml:"checkout"`
	DatabasePath   string `toml:"database_path"`
	LogLevel       string `toml:"log_level"`
	DefaultProfile string `toml:"default_profile"`
}

// ScheduleConfig holds the bump trigger thresholds
type ScheduleConfig struct {
	RevsThreshold int64    `toml:"revs_threshold"`
	TimeThreshold Duration `toml:"time_threshold"`
	Cron          string   `toml:"cron"`
}

// LKGRConfig holds the stability oracle settings
type LKGRConfig struct {
	Enabled bool     `toml:"enabled"`
	URL     string   `toml:"url"`
	LogPath string   `toml:"log_path"`
	Timeout Duration `toml:"timeout"`
}

// ReviewConfig holds the review and try dispatch commands. IssueCommand
// prints the review URL of the current branch.
type ReviewConfig struct {
	UploadCommand []string `toml:"upload_command"`
	TryCommand    []string `toml:"try_command"`
	IssueCommand  []string `toml:"issue_command"`
	Bots          []string `toml:"bots"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// ProfileConfig describes one bumpable upstream and where it is pinned
type ProfileConfig struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Manifest ManifestConfig `toml:"manifest"`
	Message  MessageConfig  `toml:"message"`
	// BranchPrefix names attempt branches <prefix>-r<rev>
	BranchPrefix string `toml:"branch_prefix"`
	// BaseRef is the downstream ref new branches start from
	BaseRef string `toml:"base_ref"`
}

// UpstreamConfig selects the revision source
type UpstreamConfig struct {
	// Kind is "svn" or "git"
	Kind        string   `toml:"kind"`
	URL         string   `toml:"url"`
	RootURL     string   `toml:"root_url"`
	GitDir      string   `toml:"git_dir"`
	GitRef      string   `toml:"git_ref"`
	QuietPeriod Duration `toml:"quiet_period"`
	// Manifest is the upstream's own manifest, read for companion fields
	Manifest string `toml:"manifest"`
}

// ManifestConfig names the downstream manifest and its pinned field
type ManifestConfig struct {
	Path  string `toml:"path"`
	Field string `toml:"field"`
	// Pin is "number" (write the revision number) or "hash" (write the
	// commit hash, git upstreams only)
	Pin string `toml:"pin"`
	// Companions maps downstream field -> upstream manifest field; values
	// are copied by value at the target revision.
	Companions map[string]string `toml:"companions"`
}

// MessageConfig controls the review message
type MessageConfig struct {
	Component string   `toml:"component"`
	Style     string   `toml:"style"`
	Test      string   `toml:"test"`
	BotAuthor string   `toml:"bot_author"`
	BotMarker string   `toml:"bot_marker"`
	CC        []string `toml:"cc"`
}

// Duration is a time.Duration written as a string such as "12h"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			Checkout:       ".",
			DatabasePath:   filepath.Join(home, ".nacl-deps", "history.db"),
			LogLevel:       "info",
			DefaultProfile: "nacl",
		},
		Schedule: ScheduleConfig{
			RevsThreshold: 10,
			TimeThreshold: Duration{12 * time.Hour},
			Cron:          "*/20 * * * *",
		},
		LKGR: LKGRConfig{
			Enabled: true,
			URL:     "http://chromium-status.appspot.com/lkgr",
			LogPath: "chromium_lkgr.log",
			Timeout: Duration{30 * time.Second},
		},
		Review: ReviewConfig{
			UploadCommand: []string{"git", "cl", "upload"},
			TryCommand:    []string{"git", "cl", "try"},
			IssueCommand:  []string{"git", "cl", "issue"},
			Bots:          []string{"nacl_integration"},
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Profiles: map[string]ProfileConfig{
			"nacl": DefaultNaClProfile(),
		},
	}
}

// DefaultNaClProfile bumps nacl_revision in Chromium's DEPS from NaCl's SVN
func DefaultNaClProfile() ProfileConfig {
	return ProfileConfig{
		Upstream: UpstreamConfig{
			Kind:        "svn",
			URL:         "svn://svn.chromium.org/native_client/trunk/src/native_client",
			RootURL:     "svn://svn.chromium.org/native_client",
			QuietPeriod: Duration{10 * time.Minute},
			Manifest:    "DEPS",
		},
		Manifest: ManifestConfig{
			Path:  "DEPS",
			Field: "nacl_revision",
			Companions: map[string]string{
				"nacl_chrome_ppapi_revision": "chrome_ppapi_rev",
				"nacl_tools_revision":        "tools_rev",
			},
		},
		Message: MessageConfig{
			Component: "NaCl",
			Style:     "plain",
			Test:      "trybots",
			BotAuthor: "chrome-bot",
			BotMarker: "Automated commit",
			CC:        []string{"native-client-reviews@googlegroups.com"},
		},
		BranchPrefix: "nacl-deps",
		BaseRef:      "origin/trunk",
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.Checkout = ExpandPath(cfg.General.Checkout)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.LKGR.LogPath = ExpandPath(cfg.LKGR.LogPath)
	for name, p := range cfg.Profiles {
		p.Upstream.GitDir = ExpandPath(p.Upstream.GitDir)
		cfg.Profiles[name] = p
	}

	return cfg, nil
}

// LoadWithLocalFallback loads path if given, else the nearest local config,
// else the default config path.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig searches the working directory and its parents for
// LocalConfigName and returns its path, or "" if none exists
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Profile returns the named profile with defaults filled in. An empty name
// selects General.DefaultProfile.
func (c *Config) Profile(name string) (ProfileConfig, error) {
	if name == "" {
		name = c.General.DefaultProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return ProfileConfig{}, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(c.ProfileNames(), ", "))
	}
	if p.Manifest.Path == "" {
		p.Manifest.Path = "DEPS"
	}
	if p.Manifest.Field == "" {
		return ProfileConfig{}, fmt.Errorf("profile %q: manifest.field is required", name)
	}
	if p.BranchPrefix == "" {
		p.BranchPrefix = name + "-deps"
	}
	if p.BaseRef == "" {
		p.BaseRef = "origin/master"
	}
	if p.Upstream.QuietPeriod.Duration == 0 {
		p.Upstream.QuietPeriod = Duration{10 * time.Minute}
	}
	if p.Upstream.GitRef == "" {
		p.Upstream.GitRef = "origin/master"
	}
	if p.Message.Component == "" {
		p.Message.Component = name
	}
	if p.Manifest.Pin == "" {
		p.Manifest.Pin = PinNumber
	}
	if p.Manifest.Pin != PinNumber && p.Manifest.Pin != PinHash {
		return ProfileConfig{}, fmt.Errorf("profile %q: unknown manifest.pin %q", name, p.Manifest.Pin)
	}
	if p.Message.Style == "" {
		p.Message.Style = "author"
	}
	switch p.Upstream.Kind {
	case "svn":
		if p.Upstream.URL == "" {
			return ProfileConfig{}, fmt.Errorf("profile %q: upstream.url is required for svn", name)
		}
		if p.Upstream.RootURL == "" {
			p.Upstream.RootURL = p.Upstream.URL
		}
		if p.Manifest.Pin == PinHash {
			return ProfileConfig{}, fmt.Errorf("profile %q: svn upstreams cannot pin hashes", name)
		}
	case "git":
		if p.Upstream.GitDir == "" {
			return ProfileConfig{}, fmt.Errorf("profile %q: upstream.git_dir is required for git", name)
		}
	default:
		return ProfileConfig{}, fmt.Errorf("profile %q: unknown upstream kind %q", name, p.Upstream.Kind)
	}
	return p, nil
}

// ProfileNames returns the configured profile names, sorted
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the configuration to a TOML file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nacl-deps", "config.toml")
}
