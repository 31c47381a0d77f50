package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSeed(t *testing.T) {
	r := New(nil)
	path := writeSeed(t, `users:
  - name: Alice
    email: alice@example.com
    role: admin
  - name: Bob
    email: bob@example.com
`)

	n, err := r.LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 seeded users, got %d", n)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 users, got %d", len(list))
	}
	if list[0].Name != "Alice" || list[0].Role != RoleAdmin {
		t.Fatalf("got %+v", list[0])
	}
	if list[1].Role != RoleUser {
		t.Fatalf("expected default role for Bob, got %q", list[1].Role)
	}
}

func TestLoadSeedInvalidEntry(t *testing.T) {
	r := New(nil)
	path := writeSeed(t, `users:
  - name: Good
    email: good@example.com
  - name: Bad
    email: not-an-email
`)

	if _, err := r.LoadSeed(path); err == nil {
		t.Fatal("expected error for invalid seed entry")
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	r := New(nil)
	if _, err := r.LoadSeed(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}

func TestLoadSeedBadYAML(t *testing.T) {
	r := New(nil)
	path := writeSeed(t, "users: [whoops")
	if _, err := r.LoadSeed(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
