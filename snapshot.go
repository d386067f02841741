package outcheck

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// MatchSnapshot compares the output against a golden file stored in
// testdata/<sanitized-test-name>-<hash>/<sanitized-name>.txt.
//
// Set OUTCHECK_UPDATE=1 to create or update golden files.
func (o *Output) MatchSnapshot(t testing.TB, name string) {
	t.Helper()

	dir := snapshotDir(t)
	path := filepath.Join(dir, sanitizeName(name)+".txt")
	content := normalizeForSnapshot(o.String())

	if shouldUpdate() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("outcheck: snapshot: failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("outcheck: snapshot: failed to write golden file: %v", err)
		}
		return
	}

	golden, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("outcheck: snapshot: golden file not found: %s\nRun with OUTCHECK_UPDATE=1 to create it.\n\nActual output:\n%s", path, content)
		}
		t.Fatalf("outcheck: snapshot: failed to read golden file: %v", err)
	}

	if string(golden) != content {
		t.Fatalf("outcheck: snapshot: mismatch for %q\nGolden file: %s\nRun with OUTCHECK_UPDATE=1 to update.\n\ndiff (-golden +actual):\n%s",
			name, path, cmp.Diff(string(golden), content))
	}
}

// snapshotDir returns the directory for golden files for the current test.
// The hash suffix keeps names that sanitize alike apart.
func snapshotDir(t testing.TB) string {
	t.Helper()

	fullName := t.Name()
	h := sha256.Sum256([]byte(fullName))
	return filepath.Join("testdata", sanitizeName(fullName)+"-"+hex.EncodeToString(h[:4]))
}

// normalizeForSnapshot trims trailing spaces on each line and trailing blank
// lines, and ends the content with a single newline.
func normalizeForSnapshot(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n"
}

// shouldUpdate returns true if OUTCHECK_UPDATE is set to a truthy value.
func shouldUpdate() bool {
	v := os.Getenv("OUTCHECK_UPDATE")
	return v == "1" || v == "true" || v == "yes"
}

// sanitizeName makes a test or snapshot name safe for use as a path element.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || strings.Trim(s, ".") == "" {
		return "_"
	}
	return s
}
