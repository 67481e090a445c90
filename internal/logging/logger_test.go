package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitialize_DebugModeWritesCategoryFiles(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Get(CategoryWorld).Info("indexed %d files", 3)
	Sync()

	data, err := os.ReadFile(filepath.Join(ws, ".cortex", "logs", "world.log"))
	if err != nil {
		t.Fatalf("read world.log: %v", err)
	}
	if !strings.Contains(string(data), "indexed 3 files") {
		t.Fatalf("log line missing, got: %s", data)
	}
}

func TestInitialize_ProductionModeIsSilent(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Get(CategoryStore).Error("should go nowhere")
	Sync()

	if _, err := os.Stat(filepath.Join(ws, ".cortex", "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs directory created in production mode")
	}
}

func TestInitialize_CategoryFilter(t *testing.T) {
	ws := t.TempDir()
	err := Initialize(ws, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"plan": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Get(CategoryPlan).Info("disabled category")
	Sync()

	if _, err := os.Stat(filepath.Join(ws, ".cortex", "logs", "plan.log")); !os.IsNotExist(err) {
		t.Fatalf("disabled category still wrote a file")
	}
}
