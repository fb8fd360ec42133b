package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SourcesDir != "shepherd-sources" {
		t.Errorf("SourcesDir = %s", cfg.SourcesDir)
	}
	if cfg.CentralDir != "docs" {
		t.Errorf("CentralDir = %s", cfg.CentralDir)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if cfg.VerifyCacheTTL != 5*time.Second {
		t.Errorf("VerifyCacheTTL = %v", cfg.VerifyCacheTTL)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := "sources_dir: /srv/sources\nmax_artifact_bytes: 65536\nverbose: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SourcesDir != "/srv/sources" {
		t.Errorf("SourcesDir = %s", cfg.SourcesDir)
	}
	if cfg.MaxArtifactBytes != 65536 {
		t.Errorf("MaxArtifactBytes = %d", cfg.MaxArtifactBytes)
	}
	if !cfg.Verbose {
		t.Error("Verbose not set from file")
	}
	// Untouched keys keep defaults.
	if cfg.CentralDir != "docs" {
		t.Errorf("CentralDir = %s", cfg.CentralDir)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte("central_dir: from-file\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("SHEPHERD_CENTRAL_DIR", "from-env")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CentralDir != "from-env" {
		t.Errorf("CentralDir = %s, want from-env", cfg.CentralDir)
	}
}

func TestLoad_ChangedFlagWinsOverEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHEPHERD_CENTRAL_DIR", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("central-dir", "", "")
	if err := flags.Parse([]string{"--central-dir", "from-flag"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CentralDir != "from-flag" {
		t.Errorf("CentralDir = %s, want from-flag", cfg.CentralDir)
	}
}

func TestLoad_UnchangedFlagIgnored(t *testing.T) {
	t.Chdir(t.TempDir())
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("central-dir", "flag-default", "")

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CentralDir != "docs" {
		t.Errorf("CentralDir = %s, want docs default", cfg.CentralDir)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if got := FindProjectRoot(nested); got != root {
		t.Errorf("FindProjectRoot = %s, want %s", got, root)
	}
	if got := FindProjectRoot(t.TempDir()); got != "" {
		t.Errorf("FindProjectRoot = %s, want empty", got)
	}
}
