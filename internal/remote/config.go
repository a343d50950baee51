// Package remote runs a build command for named test targets, syncing the
// source tree to remote hosts first.
package remote

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LocalHost names this machine in a target's host field
const LocalHost = "local"

// DefaultCommand is the build command prefix used when the table has none
const DefaultCommand = "./scons sysinfo=0 target_stats=0"

// ErrUnknownTarget is returned for a target name missing from the table
var ErrUnknownTarget = errors.New("unknown target")

// Config is the target table
type Config struct {
	Command string            `yaml:"command"`
	Hosts   map[string]Host   `yaml:"hosts"`
	Targets map[string]Target `yaml:"targets"`
}

// Host is a machine holding a checkout of the source tree
type Host struct {
	// Address is what ssh and rsync connect to
	Address string `yaml:"address"`
	Dir     string `yaml:"dir"`
	// Wrapper prefixes the command on the remote side, e.g. to load a
	// compiler environment
	Wrapper string `yaml:"wrapper"`
}

// Target is a named build configuration on a host
type Target struct {
	Host string `yaml:"host"`
	Opts string `yaml:"opts"`
}

// DefaultTable is used when no target table is given
const DefaultTable = `
command: ./scons sysinfo=0 target_stats=0
hosts:
  macpro:
    address: hydric
    dir: devel/nacl/native_client
  win32vm:
    address: win32vm
    dir: devel/nacl/native_client
    wrapper: nacl-try setenv ~/env-vc
  win32vm64:
    address: win32vm
    dir: devel/nacl/native_client
    wrapper: nacl-try setenv ~/env-vc64
  winbox:
    address: winbox
    dir: devel/nacl/native_client
    wrapper: nacl-try setenv ~/env-vc64
  winbox32:
    address: winbox
    dir: devel/nacl/native_client
    wrapper: nacl-try setenv ~/env-vc
  benthic:
    address: benthic
    dir: devel/nacl/native_client
targets:
  "32":    {host: local, opts: "--mode=dbg-linux,nacl platform=x86-32 -j2"}
  "64":    {host: local, opts: "--mode=dbg-linux,nacl platform=x86-64 -j2"}
  arm:     {host: local, opts: "--mode=dbg-linux,nacl sdl=none platform=arm -j2"}
  mac:     {host: macpro, opts: "--mode=dbg-mac,nacl -j6"}
  mac64:   {host: macpro, opts: "--mode=dbg-mac,nacl -j6 platform=x86-64"}
  win:     {host: win32vm, opts: "--mode=dbg-win,nacl"}
  win64:   {host: win32vm64, opts: "--mode=dbg-win,nacl platform=x86-64 sdl=none -j8"}
  winbox:  {host: winbox, opts: "--mode=dbg-win,nacl platform=x86-64"}
  winbox32: {host: winbox32, opts: "--mode=dbg-win,nacl platform=x86-32"}
  benthic: {host: benthic, opts: "--mode=dbg-linux,nacl"}
`

// Default returns the built-in target table
func Default() Config {
	cfg, err := Parse([]byte(DefaultTable))
	if err != nil {
		panic(fmt.Sprintf("built-in target table: %v", err))
	}
	return cfg
}

// Parse decodes and validates a YAML target table
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing target table: %w", err)
	}
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a target table, or returns Default when path is empty
func Load(fs afero.Fs, path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every target names a usable host
func (c Config) Validate() error {
	if _, ok := c.Hosts[LocalHost]; ok {
		return fmt.Errorf("host name %q is reserved", LocalHost)
	}
	for name, h := range c.Hosts {
		if h.Address == "" || h.Dir == "" {
			return fmt.Errorf("host %q: address and dir are required", name)
		}
	}
	for _, name := range c.TargetNames() {
		t := c.Targets[name]
		if t.Host == "" || t.Host == LocalHost {
			continue
		}
		if _, ok := c.Hosts[t.Host]; !ok {
			return fmt.Errorf("target %q: unknown host %q", name, t.Host)
		}
	}
	return nil
}

// TargetNames returns the target names, sorted
func (c Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the target and its host; local is true for this machine
func (c Config) Lookup(name string) (t Target, h Host, local bool, err error) {
	t, ok := c.Targets[name]
	if !ok {
		return Target{}, Host{}, false, fmt.Errorf("%w %q", ErrUnknownTarget, name)
	}
	if t.Host == "" || t.Host == LocalHost {
		return t, Host{}, true, nil
	}
	return t, c.Hosts[t.Host], false, nil
}
