package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/escape-labs/internal/scenario"
	"github.com/ashureev/escape-labs/internal/scenario/scenariotest"
)

// writeScenario copies the in-memory test scenario to root/name.
func writeScenario(t *testing.T, root, name string, skip ...string) {
	t.Helper()
	for file, f := range scenariotest.FS() {
		if contains(skip, file) {
			continue
		}
		dest := filepath.Join(root, name, filepath.FromSlash(file))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(dest, f.Data, 0o644); err != nil {
			t.Fatalf("write %s: %v", dest, err)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestCheckScenarios(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "good")
	writeScenario(t, root, "broken", "rooms/eda.md", "data/data.csv", "data/zz_extra.csv")

	var out bytes.Buffer
	n := checkScenarios(&out, scenario.NewRegistry(root), []string{"good"})
	if n != 0 {
		t.Errorf("Expected no problems, got %d:\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "ok   good (6 rooms, 5 fields)") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}

	out.Reset()
	n = checkScenarios(&out, scenario.NewRegistry(root), []string{"broken", "missing"})
	// narrative, download and dataset header for broken, plus the missing scenario
	if n != 4 {
		t.Errorf("Expected 4 problems, got %d:\n%s", n, out.String())
	}
	for _, want := range []string{"FAIL broken", "rooms/eda.md", "error:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestScenariosCommand(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "alpha")
	writeScenario(t, root, "beta")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"scenarios", "--scenarios-dir", root, "--scenario", "beta"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("scenarios failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "  alpha") {
		t.Errorf("Expected alpha unmarked, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "* beta") || !strings.Contains(lines[1], "Test Heist") {
		t.Errorf("Expected beta marked active, got %q", lines[1])
	}
}

func TestCheckCommandFails(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "broken", "lore.md")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--scenarios-dir", root, "broken"})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "1 problem(s) found") {
		t.Errorf("Expected one problem, got %v:\n%s", err, out.String())
	}
}

func TestPrintScenariosEmpty(t *testing.T) {
	var out bytes.Buffer
	printScenarios(&out, nil, "x")
	if strings.TrimSpace(out.String()) != "no scenarios found" {
		t.Errorf("Unexpected output %q", out.String())
	}
}
