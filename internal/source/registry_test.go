package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// writeSource drops a yaml source file under root/<sub>/<id>.yaml.
func writeSource(t *testing.T, root, sub, id, content string) {
	t.Helper()
	dir := filepath.Join(root, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func coreDoc(name string, order int) string {
	return fmt.Sprintf("name: %s\nversion: \"1\"\norder: %d\nsummary: %s summary\n", name, order, name)
}

// --- LoadCore ---

func TestFileRegistry_LoadCore_OrdersByOrder(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, CoreDir, "persona", coreDoc("Persona", 20))
	writeSource(t, root, CoreDir, "base", coreDoc("Base", 10))

	reg := NewFileRegistry(root, nil)
	sources, err := reg.LoadCore(context.Background())
	if err != nil {
		t.Fatalf("LoadCore failed: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[0].ID != "base" || sources[1].ID != "persona" {
		t.Errorf("order = [%s %s], want [base persona]", sources[0].ID, sources[1].ID)
	}
	for _, s := range sources {
		if !s.Mandatory {
			t.Errorf("core source %s not mandatory", s.ID)
		}
	}
}

func TestFileRegistry_LoadCore_Deterministic(t *testing.T) {
	root := t.TempDir()
	// Same order value — tiebreak must be the id.
	writeSource(t, root, CoreDir, "zeta", coreDoc("Zeta", 10))
	writeSource(t, root, CoreDir, "alpha", coreDoc("Alpha", 10))

	reg := NewFileRegistry(root, nil)
	for i := 0; i < 3; i++ {
		sources, err := reg.LoadCore(context.Background())
		if err != nil {
			t.Fatalf("LoadCore failed: %v", err)
		}
		if sources[0].ID != "alpha" || sources[1].ID != "zeta" {
			t.Fatalf("run %d: order = [%s %s], want [alpha zeta]", i, sources[0].ID, sources[1].ID)
		}
	}
}

func TestFileRegistry_LoadCore_EmptyIsConfigError(t *testing.T) {
	reg := NewFileRegistry(t.TempDir(), nil)
	_, err := reg.LoadCore(context.Background())

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
}

func TestFileRegistry_LoadCore_MalformedIsFatal(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, CoreDir, "broken", "version: \"1\"\nsummary: no name\n")

	reg := NewFileRegistry(root, nil)
	_, err := reg.LoadCore(context.Background())

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if cfgErr.SourceID != "broken" {
		t.Errorf("SourceID = %s, want broken", cfgErr.SourceID)
	}
	if cfgErr.Field != "name" {
		t.Errorf("Field = %s, want name", cfgErr.Field)
	}
}

func TestFileRegistry_LoadCore_IncludesMandatoryOverrides(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, CoreDir, "base", coreDoc("Base", 10))
	writeSource(t, root, UserDir, "house-rules",
		"name: House Rules\nversion: \"1\"\norder: 50\nmandatory: true\nsummary: house summary\n")
	writeSource(t, root, UserDir, "optional-notes", coreDoc("Optional Notes", 60))

	reg := NewFileRegistry(root, nil)
	sources, err := reg.LoadCore(context.Background())
	if err != nil {
		t.Fatalf("LoadCore failed: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[1].ID != "house-rules" || sources[1].Kind != KindUser {
		t.Errorf("sources[1] = %s/%s, want house-rules/user", sources[1].ID, sources[1].Kind)
	}

	// The mandatory override belongs to LoadCore alone; combining both
	// loads must not duplicate it.
	selected, _, err := reg.LoadSelected(context.Background(), Selection{})
	if err != nil {
		t.Fatalf("LoadSelected failed: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != "optional-notes" {
		t.Fatalf("selected = %v, want just optional-notes", selected)
	}
}

func TestFileRegistry_LoadCore_MalformedMandatoryOverrideIsFatal(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, CoreDir, "base", coreDoc("Base", 10))
	// Declares mandatory but is missing its name.
	writeSource(t, root, UserDir, "broken", "version: \"1\"\nmandatory: true\nsummary: no name\n")

	reg := NewFileRegistry(root, nil)
	_, err := reg.LoadCore(context.Background())

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if cfgErr.SourceID != "broken" {
		t.Errorf("SourceID = %s, want broken", cfgErr.SourceID)
	}
}

// --- LoadSelected ---

func TestFileRegistry_LoadSelected_PicksOnlySelected(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, MethodologiesDir, "shape-up", coreDoc("Shape Up", 10))
	writeSource(t, root, MethodologiesDir, "scrum", coreDoc("Scrum", 20))
	writeSource(t, root, StandardsDir, "tdd", coreDoc("TDD", 30))

	reg := NewFileRegistry(root, nil)
	sel := NewSelection([]string{"shape-up"}, []string{"tdd"})
	sources, warnings, err := reg.LoadSelected(context.Background(), sel)
	if err != nil {
		t.Fatalf("LoadSelected failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	for _, s := range sources {
		if s.ID == "scrum" {
			t.Error("unselected methodology scrum was loaded")
		}
	}
}

func TestFileRegistry_LoadSelected_UnknownIDIsWarning(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, StandardsDir, "tdd", coreDoc("TDD", 10))

	reg := NewFileRegistry(root, nil)
	sel := NewSelection([]string{"kanban"}, []string{"tdd"})
	sources, warnings, err := reg.LoadSelected(context.Background(), sel)
	if err != nil {
		t.Fatalf("unknown ids must not be errors, got: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != "tdd" {
		t.Fatalf("sources = %v, want just tdd", sources)
	}
	if len(warnings) != 1 {
		t.Fatalf("len(warnings) = %d, want 1", len(warnings))
	}
	if warnings[0].ID != "kanban" || warnings[0].Kind != KindMethodology {
		t.Errorf("warning = %+v, want kanban/methodology", warnings[0])
	}
}

func TestFileRegistry_LoadSelected_UserOverridesAlwaysIncluded(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, UserDir, "my-overrides", coreDoc("My Overrides", 100))

	reg := NewFileRegistry(root, nil)
	sources, _, err := reg.LoadSelected(context.Background(), Selection{})
	if err != nil {
		t.Fatalf("LoadSelected failed: %v", err)
	}
	if len(sources) != 1 || sources[0].Kind != KindUser {
		t.Fatalf("sources = %v, want one user source", sources)
	}
}

func TestFileRegistry_LoadSelected_MalformedOptionalIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, StandardsDir, "broken", "not: [valid")
	writeSource(t, root, StandardsDir, "tdd", coreDoc("TDD", 10))

	reg := NewFileRegistry(root, nil)
	sel := NewSelection(nil, []string{"tdd"})
	sources, _, err := reg.LoadSelected(context.Background(), sel)
	if err != nil {
		t.Fatalf("malformed optional source must not be fatal: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != "tdd" {
		t.Fatalf("sources = %v, want just tdd", sources)
	}
}

func TestFileRegistry_LoadSelected_NonYAMLIgnored(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, StandardsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# docs"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg := NewFileRegistry(root, nil)
	sources, warnings, err := reg.LoadSelected(context.Background(), Selection{})
	if err != nil {
		t.Fatalf("LoadSelected failed: %v", err)
	}
	if len(sources) != 0 || len(warnings) != 0 {
		t.Errorf("sources = %v, warnings = %v, want none", sources, warnings)
	}
}

func TestFileRegistry_LoadSelected_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, StandardsDir, "tdd", coreDoc("TDD", 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := NewFileRegistry(root, nil)
	_, _, err := reg.LoadSelected(ctx, NewSelection(nil, []string{"tdd"}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
