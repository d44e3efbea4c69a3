package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Address != "127.0.0.1" || cfg.Port != 8080 {
		t.Fatalf("got address=%s port=%d, want 127.0.0.1:8080", cfg.Address, cfg.Port)
	}
	if cfg.DefaultPublicTag != "duck" || cfg.DefaultTag != "duck" {
		t.Fatalf("got default tags %s/%s, want duck/duck", cfg.DefaultPublicTag, cfg.DefaultTag)
	}
	if cfg.MaxPoints != 1000 || cfg.DefaultPoints != 200 {
		t.Fatalf("got max=%d default=%d, want 1000/200", cfg.MaxPoints, cfg.DefaultPoints)
	}
	if cfg.UpdateInterval != time.Second {
		t.Fatalf("got update interval %v, want 1s", cfg.UpdateInterval)
	}
	if cfg.CoordWrap != nil {
		t.Fatal("expected CoordWrap to be nil when --box-coords is unset")
	}
}

func TestParseOverridesFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--address", "0.0.0.0",
		"--port", "9090",
		"--max-points", "50",
		"--update-interval", "250ms",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Address != "0.0.0.0" || cfg.Port != 9090 {
		t.Fatalf("got address=%s port=%d, want 0.0.0.0:9090", cfg.Address, cfg.Port)
	}
	if cfg.MaxPoints != 50 {
		t.Fatalf("got max-points=%d, want 50", cfg.MaxPoints)
	}
	if cfg.UpdateInterval != 250*time.Millisecond {
		t.Fatalf("got update-interval=%v, want 250ms", cfg.UpdateInterval)
	}
}

func TestParseBoxCoordsBuildsWrapper(t *testing.T) {
	cfg, err := Parse([]string{"--box-coords", "10,20,-5,-30"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.CoordWrap == nil {
		t.Fatal("expected CoordWrap to be set")
	}
}

func TestParseRejectsMalformedBoxCoords(t *testing.T) {
	if _, err := Parse([]string{"--box-coords", "not-a-box"}); err == nil {
		t.Fatal("expected an error for a malformed --box-coords value")
	}
}
