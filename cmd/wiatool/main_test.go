package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func buildWiatool(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "wiatool")
	cmd := exec.Command("go", "build", "-o", binPath, "github.com/wiatool/wia/cmd/wiatool")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, out)
	}
	return binPath
}

func TestCLIVersion(t *testing.T) {
	bin := buildWiatool(t)

	out, err := exec.Command(bin, "-version").CombinedOutput()
	if err != nil {
		t.Fatalf("running -version: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "wiatool version") {
		t.Errorf("version output incorrect: %s", out)
	}
}

func TestCLIMissingInput(t *testing.T) {
	bin := buildWiatool(t)

	cmd := exec.Command(bin, "-info")
	if err := cmd.Run(); err == nil {
		t.Error("expected an error for a missing -i flag, got nil")
	}
}

func TestCLIMissingMode(t *testing.T) {
	bin := buildWiatool(t)

	testFile := filepath.Join(t.TempDir(), "test.wia")
	if err := os.WriteFile(testFile, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	cmd := exec.Command(bin, "-i", testFile)
	if err := cmd.Run(); err == nil {
		t.Error("expected an error when none of -info/-x/-c is given, got nil")
	}
}

func TestCLIInfoOnCorruptFile(t *testing.T) {
	bin := buildWiatool(t)

	testFile := filepath.Join(t.TempDir(), "test.wia")
	if err := os.WriteFile(testFile, []byte("not a wia file"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	cmd := exec.Command(bin, "-i", testFile, "-info")
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Errorf("expected an error opening a corrupt file, got success: %s", out)
	}
}
