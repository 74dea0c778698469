package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("SHELL_ENV_TEST_A=file\nSHELL_ENV_TEST_B=\"quoted value\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHELL_ENV_TEST_A", "process")
	t.Setenv("SHELL_ENV_TEST_B", "")
	os.Unsetenv("SHELL_ENV_TEST_B")

	Load("", filepath.Join(dir, "missing.env"), p)

	if got := os.Getenv("SHELL_ENV_TEST_A"); got != "process" {
		t.Fatalf("override: %q", got)
	}
	if got := os.Getenv("SHELL_ENV_TEST_B"); got != "quoted value" {
		t.Fatalf("load: %q", got)
	}
}
