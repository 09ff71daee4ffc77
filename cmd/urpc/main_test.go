package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urpc.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

const quietConfig = "logging:\n  level: error\n"

func TestCall_Function(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	out, _, err := execute(t, "call", "function.call", `{"method":"sum","input":{"a":1,"b":2}}`,
		"--config", path, "--output", "json", "--caller", "")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Errorf("output = %q, want 3", out)
	}
}

func TestCall_HiddenTarget(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	_, stderr, err := execute(t, "call", "function.call", `{"method":"admin.reset"}`,
		"--config", path, "--output", "json", "--caller", "")
	if err == nil {
		t.Fatal("expected error for hidden target")
	}
	if !strings.Contains(stderr, "UnknownTarget") {
		t.Errorf("stderr = %q, want UnknownTarget kind", stderr)
	}

	out, _, err := execute(t, "call", "function.call", `{"method":"admin.reset"}`,
		"--config", path, "--output", "json", "--caller", `{"isAdmin":true}`)
	if err != nil {
		t.Fatalf("admin call: %v", err)
	}
	if !strings.Contains(out, `"ok": true`) {
		t.Errorf("output = %q, want ok result", out)
	}
}

func TestCall_InvalidParams(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	if _, _, err := execute(t, "call", "variable.get", `{"name":`, "--config", path); err == nil {
		t.Fatal("expected error for malformed params")
	}
}

func TestSchema_ListsDescriptors(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	out, _, err := execute(t, "schema", "object", "--config", path, "--output", "json", "--vars=false", "--caller", "")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	var descriptors []map[string]any
	if err := json.Unmarshal([]byte(out), &descriptors); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	paths := map[string]bool{}
	for _, d := range descriptors {
		paths[d["path"].(string)] = true
	}
	if !paths["object.sum1"] || !paths["object.collections"] {
		t.Errorf("paths = %v", paths)
	}
	if paths["sum"] {
		t.Error("namespace should exclude entities outside it")
	}
}

func TestSchema_Vars(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	out, _, err := execute(t, "schema", "--config", path, "--output", "json", "--vars", "--caller", "")
	if err != nil {
		t.Fatalf("schema --vars: %v", err)
	}
	if !strings.Contains(out, `"path": "data"`) {
		t.Errorf("output = %q, want data variable", out)
	}
}

func TestToken_RequiresJWTMode(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	if _, _, err := execute(t, "token", "--user", "alice", "--config", path); err == nil {
		t.Fatal("expected error outside jwt mode")
	}

	path = writeTestConfig(t, quietConfig+"auth:\n  mode: jwt\n  jwt_secret: test\n")
	out, _, err := execute(t, "token", "--user", "alice", "--role", "admin", "--config", path)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), ".") != 2 {
		t.Errorf("output = %q, want a JWT", out)
	}
}

func TestValidate(t *testing.T) {
	path := writeTestConfig(t, quietConfig)

	out, _, err := execute(t, "validate", "--config", path, "--check-tree")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid.") || !strings.Contains(out, "entities") {
		t.Errorf("output = %q", out)
	}

	if _, _, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
