package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"observatory/internal/config"
	"observatory/internal/store"
)

func testMainConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Storage.DatabasePath = filepath.Join(dir, "observatory.db")
	cfg.Publish.OutputDir = filepath.Join(dir, "artifacts")
	cfg.Publish.LockPath = filepath.Join(dir, "run.lock")
	logger = zap.NewNop()
}

func TestStatusShowsEmptyStore(t *testing.T) {
	testMainConfig(t)

	output := captureOutput(t, func() {
		if err := showStatus(&cobra.Command{}, nil); err != nil {
			t.Fatalf("showStatus returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Latest batch: 0") {
		t.Fatalf("expected empty batch counter, got: %s", output)
	}
	if !strings.Contains(output, "No run in progress") {
		t.Fatalf("expected idle lock state, got: %s", output)
	}
}

func TestReportWithoutBatches(t *testing.T) {
	testMainConfig(t)

	if err := printReport(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected error when no batches exist")
	}
}

func TestQueueEmpty(t *testing.T) {
	testMainConfig(t)
	queueStatus = store.StatusPendingReview

	output := captureOutput(t, func() {
		if err := showQueue(&cobra.Command{}, nil); err != nil {
			t.Fatalf("showQueue returned error: %v", err)
		}
	})

	if !strings.Contains(output, "No publications") {
		t.Fatalf("expected empty queue notice, got: %s", output)
	}
}

func TestRunContextHonorsTimeout(t *testing.T) {
	testMainConfig(t)
	timeout = 10 * time.Millisecond

	ctx, cancel := runContext()
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire")
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	os.Stdout = origOut
	return <-done
}
