package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Errorf("init output = %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	out, err = runCLI(t, []string{"config", "init", "--path", target})
	if err == nil {
		t.Fatalf("expected error for existing config, got output %q", out)
	}

	out, err = runCLI(t, []string{"config", "validate", "--path", target})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "is valid") {
		t.Errorf("validate output = %q", out)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	if err := os.WriteFile(target, []byte("[playback]\ndefault_start_time = \"late\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if out, err := runCLI(t, []string{"config", "validate", "--path", target}); err == nil {
		t.Fatalf("expected validation error, got output %q", out)
	}
}
