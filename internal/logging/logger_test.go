package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	configLoaded = false
	logLevel = LevelInfo
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configContent := `logging:
  level: debug
  debug_mode: true
`
	if err := os.WriteFile(filepath.Join(tempDir, "observatory.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryStore,
		CategoryIngest,
		CategoryGraph,
		CategoryMeme,
		CategoryConflict,
		CategoryRep,
		CategorySecurity,
		CategoryAPI,
		CategoryCouncil,
		CategoryReport,
		CategoryPublish,
		CategoryPipeline,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Boot("Convenience boot log")
	Ingest("Convenience ingest log")
	Graph("Convenience graph log")
	Meme("Convenience meme log")
	Conflict("Convenience conflict log")
	Reputation("Convenience reputation log")
	Security("Convenience security log")
	API("Convenience api log")
	Council("Convenience council log")
	Report("Convenience report log")
	Publish("Convenience publish log")
	Pipeline("Convenience pipeline log")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".observatory", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	tempDir := t.TempDir()

	configContent := `logging:
  level: debug
  debug_mode: false
`
	if err := os.WriteFile(filepath.Join(tempDir, "observatory.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	for _, cat := range []Category{CategoryBoot, CategoryStore, CategoryCouncil} {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	// Should all be no-ops
	Boot("This should NOT be logged")
	Council("This should NOT be logged")

	logger := Get(CategoryStore)
	logger.Info("This should NOT be logged")
	logger.Error("This should NOT be logged")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".observatory", "logs")
	if _, err := os.Stat(logsPath); err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	}
}

// TestCategoryToggle tests individual category enable/disable
func TestCategoryToggle(t *testing.T) {
	tempDir := t.TempDir()

	configContent := `logging:
  level: debug
  debug_mode: true
  categories:
    boot: true
    graph: true
    meme: false
    council: false
`
	if err := os.WriteFile(filepath.Join(tempDir, "observatory.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryGraph) {
		t.Error("graph should be enabled")
	}
	if IsCategoryEnabled(CategoryMeme) {
		t.Error("meme should be DISABLED")
	}
	if IsCategoryEnabled(CategoryCouncil) {
		t.Error("council should be DISABLED")
	}

	// Category not in config defaults to enabled when debug_mode=true
	if !IsCategoryEnabled(CategoryPublish) {
		t.Error("publish (not in config) should default to enabled")
	}

	Boot("This SHOULD be logged")
	Graph("This SHOULD be logged")
	Meme("This should NOT be logged")
	Council("This should NOT be logged")
	Publish("This SHOULD be logged (default enabled)")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".observatory", "logs")
	entries, _ := os.ReadDir(logsPath)

	hasMemeLog := false
	hasCouncilLog := false
	hasBootLog := false

	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "boot") {
			hasBootLog = true
		}
		if strings.Contains(name, "meme") {
			hasMemeLog = true
		}
		if strings.Contains(name, "council") {
			hasCouncilLog = true
		}
	}

	if !hasBootLog {
		t.Error("Expected boot log file")
	}
	if hasMemeLog {
		t.Error("Should NOT have meme log file (disabled)")
	}
	if hasCouncilLog {
		t.Error("Should NOT have council log file (disabled)")
	}
}

// TestTimerLogging tests the timing helper
func TestTimerLogging(t *testing.T) {
	tempDir := t.TempDir()

	configContent := `logging:
  level: debug
  debug_mode: true
`
	os.WriteFile(filepath.Join(tempDir, "observatory.yaml"), []byte(configContent), 0644)

	resetState()
	Initialize(tempDir)

	timer := StartTimer(CategoryGraph, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	CloseAll()
}
