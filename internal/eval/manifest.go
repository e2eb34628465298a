package eval

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyManifest is returned when a manifest contains no items.
	ErrEmptyManifest = errors.New("eval: manifest has no items")

	// ErrDuplicateID is returned when two items share an ID.
	ErrDuplicateID = errors.New("eval: duplicate item id")
)

// Item is one reference/hypothesis pair to score.
type Item struct {
	// ID identifies the item in reports. Items without an ID are numbered by
	// their 1-based position.
	ID string `yaml:"id" json:"id"`

	// Reference is the expected transcript.
	Reference string `yaml:"reference" json:"reference"`

	// Hypothesis is the transcript under test.
	Hypothesis string `yaml:"hypothesis" json:"hypothesis"`
}

// Manifest is a corpus of items, typically loaded with [LoadManifest].
//
//	items:
//	  - id: utt-001
//	    reference: the nonsmoker sat down
//	    hypothesis: the non smoker sat
type Manifest struct {
	Items []Item `yaml:"items" json:"items"`
}

// LoadManifest reads the manifest file at path. YAML and JSON are both
// accepted.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eval: open manifest %q: %w", path, err)
	}
	defer f.Close()

	m, err := DecodeManifest(f)
	if err != nil {
		return nil, fmt.Errorf("eval: parse manifest %q: %w", path, err)
	}
	return m, nil
}

// DecodeManifest decodes a YAML or JSON manifest from r, numbers items that
// have no ID and rejects empty manifests and duplicate IDs.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("eval: decode manifest: %w", err)
	}
	if len(m.Items) == 0 {
		return nil, ErrEmptyManifest
	}

	items, err := normalizeItems(m.Items)
	if err != nil {
		return nil, err
	}
	m.Items = items
	return &m, nil
}

// normalizeItems returns a copy of items with missing IDs filled in. It
// fails with [ErrDuplicateID] when two items end up with the same ID.
func normalizeItems(items []Item) ([]Item, error) {
	out := make([]Item, len(items))
	seen := make(map[string]int, len(items))
	for i, it := range items {
		if it.ID == "" {
			it.ID = strconv.Itoa(i + 1)
		}
		if prev, ok := seen[it.ID]; ok {
			return nil, fmt.Errorf("%w: %q at items %d and %d", ErrDuplicateID, it.ID, prev+1, i+1)
		}
		seen[it.ID] = i
		out[i] = it
	}
	return out, nil
}
