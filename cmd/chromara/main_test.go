package main

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/kelter-antunes/chromara/internal/auth"
	"github.com/kelter-antunes/chromara/internal/config"
	"github.com/kelter-antunes/chromara/internal/hw/camera/fake"
	"github.com/kelter-antunes/chromara/internal/hw/camera/mediadev"
	"github.com/kelter-antunes/chromara/internal/logic/capture"
	"github.com/kelter-antunes/chromara/internal/logic/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), config.ConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyFlagsMock(t *testing.T) {
	cfg := config.Default()
	applyFlags(&cfg, runOptions{})
	if cfg.Camera.Mock || cfg.Tally.MockGPIO {
		t.Fatal("mock enabled without --mock")
	}
	applyFlags(&cfg, runOptions{Mock: true})
	if !cfg.Camera.Mock || !cfg.Tally.MockGPIO {
		t.Errorf("--mock: camera %v gpio %v, want both true", cfg.Camera.Mock, cfg.Tally.MockGPIO)
	}
}

func TestCapabilities(t *testing.T) {
	caps, err := capabilities([]string{"camera", "storage_write"})
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if len(caps) != 2 || caps[0] != auth.CameraAccess || caps[1] != auth.StorageWrite {
		t.Errorf("caps = %v", caps)
	}
	if _, err := capabilities([]string{"microphone"}); err == nil {
		t.Error("expected error for unknown capability")
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.Mock = true
	cfg.Camera.RawEnabled = true
	p, ok := newProvider(&cfg).(*fake.Provider)
	if !ok {
		t.Fatalf("mock provider is %T", newProvider(&cfg))
	}
	devs, _ := p.Devices()
	if len(devs) != 1 || !devs[0].RawCapable {
		t.Errorf("devices = %+v", devs)
	}

	cfg.Camera.Mock = false
	if _, ok := newProvider(&cfg).(*mediadev.Provider); !ok {
		t.Errorf("real provider is %T", newProvider(&cfg))
	}
}

func TestNewPipelineFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.HalationOpacity = 200
	cfg.Pipeline.JPEGQuality = 75
	p := newPipeline(&cfg)
	if p.Halation.Opacity != 200 || p.Quality != 75 || p.Grade.Contrast != cfg.Pipeline.Contrast {
		t.Errorf("pipeline = %+v", p)
	}
}

func TestRunRejectsBadCount(t *testing.T) {
	if err := run(context.Background(), runOptions{Count: 0}); err == nil {
		t.Error("expected error for count 0")
	}
}

func TestRunMockBurst(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
storage:
  root: "`+filepath.ToSlash(root)+`"
permissions:
  auto_grant: true
pipeline:
  halation_radius: 2
defaults:
  debug_level: 0
`)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, runOptions{ConfigPath: path, Mock: true, Count: 2, Interval: 1100 * time.Millisecond}); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "Pictures", "Chromara"))
	if err != nil {
		t.Fatalf("read pictures: %v", err)
	}
	name := regexp.MustCompile(`^Chromara_\d{8}_\d{6}\.jpg$`)
	var jpegs int
	for _, e := range entries {
		if name.MatchString(e.Name()) {
			jpegs++
		}
	}
	if jpegs != 2 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("jpegs = %d, want 2 (%s)", jpegs, strings.Join(names, ", "))
	}
	if _, err := os.Stat(filepath.Join(root, "media.db")); err != nil {
		t.Errorf("media index missing: %v", err)
	}
}

func TestSaved(t *testing.T) {
	shots := []capture.Shot{{Index: 0}, {Index: 1, Err: session.ErrCaptureFailed}, {Index: 2}}
	if got := saved(shots); got != 2 {
		t.Errorf("saved = %d, want 2", got)
	}
}
