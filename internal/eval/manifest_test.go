package eval_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/werkit/internal/eval"
)

func TestDecodeManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantIDs []string
		wantErr error
	}{
		{
			name: "yaml",
			in: `
items:
  - id: utt-1
    reference: the nonsmoker sat
    hypothesis: the non smoker sat
  - id: utt-2
    reference: hello
    hypothesis: hello
`,
			wantIDs: []string{"utt-1", "utt-2"},
		},
		{
			name:    "json",
			in:      `{"items": [{"id": "a", "reference": "x", "hypothesis": "y"}]}`,
			wantIDs: []string{"a"},
		},
		{
			name: "missing ids are numbered",
			in: `
items:
  - reference: one
    hypothesis: won
  - id: named
    reference: two
    hypothesis: too
  - reference: three
    hypothesis: tree
`,
			wantIDs: []string{"1", "named", "3"},
		},
		{
			name:    "empty document",
			in:      "",
			wantErr: eval.ErrEmptyManifest,
		},
		{
			name:    "no items",
			in:      "items: []\n",
			wantErr: eval.ErrEmptyManifest,
		},
		{
			name: "duplicate ids",
			in: `
items:
  - id: x
    reference: a
    hypothesis: a
  - id: x
    reference: b
    hypothesis: b
`,
			wantErr: eval.ErrDuplicateID,
		},
		{
			name: "numbered id clashes with explicit id",
			in: `
items:
  - id: "2"
    reference: a
    hypothesis: a
  - reference: b
    hypothesis: b
`,
			wantErr: eval.ErrDuplicateID,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, err := eval.DecodeManifest(strings.NewReader(tc.in))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(m.Items) != len(tc.wantIDs) {
				t.Fatalf("items: got %d, want %d", len(m.Items), len(tc.wantIDs))
			}
			for i, id := range tc.wantIDs {
				if m.Items[i].ID != id {
					t.Errorf("items[%d].id = %q, want %q", i, m.Items[i].ID, id)
				}
			}
		})
	}
}

func TestDecodeManifest_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := eval.DecodeManifest(strings.NewReader("items:\n  - referense: a\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "referense") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	content := "items:\n  - reference: I want\n    hypothesis: I do want\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := eval.LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Items) != 1 || m.Items[0].Hypothesis != "I do want" {
		t.Errorf("items = %+v", m.Items)
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	t.Parallel()
	_, err := eval.LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
