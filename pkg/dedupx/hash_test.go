package dedupx_test

import (
	"testing"
	"time"

	"github.com/gardenledger/fieldsync/pkg/dedupx"
)

func newManager() *dedupx.Manager {
	return dedupx.NewManager(nil, dedupx.DefaultConfig())
}

func TestContentHash_IgnoresIDAndTimestamps(t *testing.T) {
	m := newManager()

	a := map[string]any{
		"id":         "work-1",
		"created_at": "2026-01-01T10:00:00Z",
		"title":      "Planted tomatoes",
		"garden":     "0xabc",
	}
	b := map[string]any{
		"id":         "work-2",
		"created_at": "2026-02-15T18:30:00Z",
		"title":      "Planted tomatoes",
		"garden":     "0xabc",
	}

	if m.ContentHash(a) != m.ContentHash(b) {
		t.Fatal("identical semantic content must hash identically regardless of id/timestamp")
	}
}

func TestContentHash_SensitiveToMeaningfulFields(t *testing.T) {
	m := newManager()

	a := map[string]any{"title": "Planted tomatoes", "garden": "0xabc"}
	b := map[string]any{"title": "Planted peppers", "garden": "0xabc"}

	if m.ContentHash(a) == m.ContentHash(b) {
		t.Fatal("changing a meaningful field must change the hash")
	}
}

func TestContentHash_FieldOrderInsensitive(t *testing.T) {
	m := newManager()

	type workA struct {
		Title  string `json:"title"`
		Garden string `json:"garden"`
	}
	type workB struct {
		Garden string `json:"garden"`
		Title  string `json:"title"`
	}

	a := workA{Title: "Weeding", Garden: "0xabc"}
	b := workB{Garden: "0xabc", Title: "Weeding"}

	if m.ContentHash(a) != m.ContentHash(b) {
		t.Fatal("field declaration order must not influence the hash")
	}
}

func TestContentHash_AttachmentCountFoldedIn(t *testing.T) {
	m := newManager()

	twoPhotos := map[string]any{
		"title":       "Composting",
		"media_paths": []string{"a.jpg", "b.jpg"},
	}
	threePhotos := map[string]any{
		"title":       "Composting",
		"media_paths": []string{"a.jpg", "b.jpg", "c.jpg"},
	}
	renamedPhotos := map[string]any{
		"title":       "Composting",
		"media_paths": []string{"x.jpg", "y.jpg"},
	}

	if m.ContentHash(twoPhotos) == m.ContentHash(threePhotos) {
		t.Fatal("differing attachment counts must hash differently")
	}
	if m.ContentHash(twoPhotos) != m.ContentHash(renamedPhotos) {
		t.Fatal("attachment byte content/names must not influence the hash")
	}
}

func TestContentHash_AttachmentCountDisabled(t *testing.T) {
	cfg := dedupx.DefaultConfig()
	cfg.IncludeAttachments = false
	m := dedupx.NewManager(nil, cfg)

	two := map[string]any{"title": "Composting", "media_paths": []string{"a.jpg", "b.jpg"}}
	three := map[string]any{"title": "Composting", "media_paths": []string{"a.jpg", "b.jpg", "c.jpg"}}

	if m.ContentHash(two) != m.ContentHash(three) {
		t.Fatal("attachment count must be irrelevant when IncludeAttachments is off")
	}
}

func TestContentHash_SensitiveToTimeValuedFields(t *testing.T) {
	m := newManager()

	type work struct {
		Title    string    `json:"title"`
		Deadline time.Time `json:"deadline"`
	}

	a := work{Title: "Pruning", Deadline: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := work{Title: "Pruning", Deadline: time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC)}
	c := work{Title: "Pruning", Deadline: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	if m.ContentHash(a) == m.ContentHash(b) {
		t.Fatal("changing a time-valued field must change the hash")
	}
	if m.ContentHash(a) != m.ContentHash(c) {
		t.Fatal("equal time values must hash identically")
	}
}

func TestContentHash_ToleratesAwkwardValues(t *testing.T) {
	m := newManager()

	// Self-referential map must not hang or panic.
	cyclic := map[string]any{"title": "loop"}
	cyclic["self"] = cyclic

	inputs := []any{
		nil,
		map[string]any{},
		map[string]any{"title": nil, "count": 3, "nested": map[string]any{"deep": []any{1, "two", nil}}},
		cyclic,
		"just a string",
		42,
	}

	for i, in := range inputs {
		first := m.ContentHash(in)
		if first == "" {
			t.Fatalf("input %d: expected non-empty hash", i)
		}
		if second := m.ContentHash(in); second != first {
			t.Fatalf("input %d: hash not deterministic", i)
		}
	}
}

func TestContentHash_CustomIgnoreList(t *testing.T) {
	cfg := dedupx.DefaultConfig()
	cfg.IgnoreFields = append(cfg.IgnoreFields, "device")
	m := dedupx.NewManager(nil, cfg)

	a := map[string]any{"title": "Watering", "device": "tablet-1"}
	b := map[string]any{"title": "Watering", "device": "phone-7"}

	if m.ContentHash(a) != m.ContentHash(b) {
		t.Fatal("configured ignore fields must not influence the hash")
	}
}

func TestHashSimilarity(t *testing.T) {
	if got := dedupx.HashSimilarity("abcd", "abcd"); got != 1.0 {
		t.Fatalf("identical hashes: expected 1.0, got %v", got)
	}
	if got := dedupx.HashSimilarity("abcd", "abce"); got != 0.75 {
		t.Fatalf("three of four matching: expected 0.75, got %v", got)
	}
	if got := dedupx.HashSimilarity("", "abcd"); got != 0 {
		t.Fatalf("empty hash: expected 0, got %v", got)
	}
}

func TestHashSimilarity_DistinctContentScoresNearZero(t *testing.T) {
	m := newManager()

	// Near-identical inputs still avalanche to unrelated digests, so the
	// positional metric stays low for anything but an exact match.
	a := m.ContentHash(map[string]any{"title": "Planted tomatoes"})
	b := m.ContentHash(map[string]any{"title": "Planted tomatoes!"})

	if got := dedupx.HashSimilarity(a, b); got >= 0.5 {
		t.Fatalf("distinct digests should score well below 0.5, got %v", got)
	}
}

func TestConfig_CopyOnRead(t *testing.T) {
	m := newManager()

	cfg := m.Config()
	cfg.IgnoreFields[0] = "mutated"

	if m.Config().IgnoreFields[0] == "mutated" {
		t.Fatal("Config() must return a copy, not a reference to internal state")
	}
}
