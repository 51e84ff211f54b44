package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{1, 8318, 65535} {
		if err := validatePort(port); err != nil {
			t.Fatalf("expected port %d to be valid, got %v", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected port %d to be rejected", port)
		}
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "config.yaml"), "bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunServeRequiresConfig(t *testing.T) {
	t.Setenv("DB_CONNECTION", "")
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestRunResetUsageValidatesArgs(t *testing.T) {
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "config.yaml"), "reset-usage", "-subject", "u:1"})
	if err == nil || !strings.Contains(err.Error(), "subject and tool are required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
