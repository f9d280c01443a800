package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("FOO", "")
	if got := GetEnv("FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	t.Setenv("FOO", "baz")
	if got := GetEnv("FOO", "bar"); got != "baz" {
		t.Fatalf("expected baz, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NUM", "")
	if got := GetEnvInt("NUM", 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("NUM", "100")
	if got := GetEnvInt("NUM", 42); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	t.Setenv("NUM", "notint")
	if got := GetEnvInt("NUM", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "")
	if got := GetEnvBool("FLAG", true); got != true {
		t.Fatalf("expected true default, got %v", got)
	}
	t.Setenv("FLAG", "false")
	if got := GetEnvBool("FLAG", true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	t.Setenv("LOG_LEVEL", "warn")
	if GetLogLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level")
	}
	t.Setenv("LOG_LEVEL", "error")
	if GetLogLevel() != logrus.ErrorLevel {
		t.Fatalf("expected error level")
	}
	t.Setenv("LOG_LEVEL", "")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level by default")
	}
}

func TestLoadEnv_NoFile(t *testing.T) {
	// Should not panic or error; just log debug
	logger := logrus.New()
	LoadEnv(logger)
}

func TestFirstEnv(t *testing.T) {
	t.Setenv("PRIMARY_SECRET", "")
	t.Setenv("FALLBACK_SECRET", "fallback")
	if got := FirstEnv("PRIMARY_SECRET", "FALLBACK_SECRET"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("PRIMARY_SECRET", "primary")
	if got := FirstEnv("PRIMARY_SECRET", "FALLBACK_SECRET"); got != "primary" {
		t.Fatalf("expected primary, got %q", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("WAIT", "")
	if got := GetEnvDuration("WAIT", 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected default, got %v", got)
	}
	t.Setenv("WAIT", "250ms")
	if got := GetEnvDuration("WAIT", 3*time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
	t.Setenv("WAIT", "soon")
	if got := GetEnvDuration("WAIT", time.Second); got != time.Second {
		t.Fatalf("expected default on parse error, got %v", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("ORIGINS", " https://a.example , ,https://b.example")
	got := GetEnvList("ORIGINS", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected list %v", got)
	}
	t.Setenv("ORIGINS", "")
	if got := GetEnvList("ORIGINS", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected default list, got %v", got)
	}
}
