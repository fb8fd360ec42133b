// Package config loads shepherd's runtime configuration from layered
// sources: built-in defaults, then shepherd.yaml, then SHEPHERD_*
// environment variables, then explicitly set command-line flags.
// Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "shepherd.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "shepherd.yml"

// envPrefix namespaces shepherd's environment variables.
const envPrefix = "SHEPHERD_"

// Config holds the resolved runtime configuration.
type Config struct {
	// SourcesDir is the root of the layered configuration sources
	// (core/, methodologies/, standards/, user/).
	SourcesDir string `koanf:"sources_dir"`

	// ArtifactPath is where the assembled context artifact is written.
	ArtifactPath string `koanf:"artifact_path"`

	// ArtifactName labels the artifact header.
	ArtifactName string `koanf:"artifact_name"`

	// MaxArtifactBytes caps the rendered artifact size; detail
	// sections are dropped to fit. Zero means unlimited.
	MaxArtifactBytes int `koanf:"max_artifact_bytes"`

	// CentralDir is the root of the central documentation tree.
	CentralDir string `koanf:"central_dir"`

	// ProjectDir is the project-scoped documentation directory.
	ProjectDir string `koanf:"project_dir"`

	// VerifyCacheTTL bounds reuse of file stat results during claim
	// verification. Zero disables the cache.
	VerifyCacheTTL time.Duration `koanf:"verify_cache_ttl"`

	// SessionTimeout is the review session inactivity timeout.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// LedgerDir holds the run-history database.
	LedgerDir string `koanf:"ledger_dir"`

	// Verbose enables debug-level logging.
	Verbose bool `koanf:"verbose"`
}

func defaults() map[string]interface{} {
	home, _ := os.UserHomeDir()
	return map[string]interface{}{
		"sources_dir":        "shepherd-sources",
		"artifact_path":      filepath.Join("shepherd-sources", "context.md"),
		"artifact_name":      "agent-context",
		"max_artifact_bytes": 0,
		"central_dir":        "docs",
		"project_dir":        ".",
		"verify_cache_ttl":   "5s",
		"session_timeout":    "30m",
		"ledger_dir":         filepath.Join(home, ".shepherd"),
		"verbose":            false,
	}
}

// Load resolves the configuration. cfgFile may be empty, in which case
// shepherd.yaml is searched for in the working directory and its
// ancestors. flags may be nil; only flags the user actually set are
// layered in.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if cfgFile == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfgFile = findConfigFile(FindProjectRoot(cwd))
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	// SHEPHERD_SOURCES_DIR -> sources_dir
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	if dir == "" {
		return ""
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory holding
// a shepherd config file. Returns empty string if none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
