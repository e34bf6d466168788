package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.json", `{"id": "Main", "name": "Main Quest", "displayOrder": 1, "quests": [
		{"id": "MQ01", "name": "Find the Amulet", "completionStages": [100, null, 200]}
	]}`)
	writeFile(t, dir, "guild.JSON", `{
		// fighters guild
		"id": "Fighters", "name": "fighters guild", "displayOrder": 2, "quests": [],
	}`)
	writeFile(t, dir, "arena.json", `{"id": "Arena", "name": "Arena", "displayOrder": 2, "quests": []}`)
	writeFile(t, dir, "cities.json", `{"id": "Cities", "name": "Cities", "quests": []}`)
	writeFile(t, dir, "broken.json", `{"id": "Broken", `)
	writeFile(t, dir, "notes.txt", `not a group`)
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "nested.json"), "deep.json", `{"id": "Deep", "name": "Deep", "displayOrder": 0}`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var got []string
	for _, g := range c.Groups {
		got = append(got, g.ID)
	}
	want := []string{"Main", "Arena", "Fighters", "Cities"}
	if len(got) != len(want) {
		t.Fatalf("groups: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pos %d: got %q want %q (seq=%v)", i, got[i], want[i], got)
		}
	}

	main := c.Group("Main")
	if main == nil {
		t.Fatalf("expected Main group")
	}
	stages := main.Quests[0].CompletionStages
	if len(stages) != 2 || stages[0] != 100 || stages[1] != 200 {
		t.Fatalf("expected null stages dropped, got %v", stages)
	}
	if c.QuestCount() != 1 {
		t.Fatalf("quest count: got %d", c.QuestCount())
	}
}

func TestLoadMissingDir(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if c.Groups == nil || len(c.Groups) != 0 {
		t.Fatalf("expected empty non-nil groups, got %#v", c.Groups)
	}
}

func TestLoadStableAcrossReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"id": "a", "name": "Beta"}`)
	writeFile(t, dir, "b.json", `{"id": "b", "name": "alpha"}`)
	writeFile(t, dir, "c.json", `{"id": "c", "name": "ALPHA"}`)
	writeFile(t, dir, "d.json", `{"id": "d", "name": "Zed", "displayOrder": -1}`)

	first, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		again, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		for i := range first.Groups {
			if first.Groups[i].ID != again.Groups[i].ID {
				t.Fatalf("pos %d changed across loads: %q vs %q", i, first.Groups[i].ID, again.Groups[i].ID)
			}
		}
	}
	if first.Groups[0].ID != "d" {
		t.Fatalf("expected negative displayOrder first, got %q", first.Groups[0].ID)
	}
}

func TestLoadDisplayOrderNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.json", `{"id": "One", "name": "One", "displayOrder": 1, "quests": []}`)
	writeFile(t, dir, "two.json", `{"id": "Two", "name": "Two", "displayOrder": 2, "quests": []}`)
	writeFile(t, dir, "half.json", `{"id": "Half", "name": "Half", "displayOrder": 1.5, "quests": []}`)
	writeFile(t, dir, "text.json", `{"id": "Text", "name": "Text", "displayOrder": "0", "quests": []}`)
	writeFile(t, dir, "null.json", `{"id": "Null", "name": "Null", "displayOrder": null, "quests": []}`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got []string
	for _, g := range c.Groups {
		got = append(got, g.ID)
	}
	want := []string{"One", "Half", "Two", "Null", "Text"}
	if len(got) != len(want) {
		t.Fatalf("groups: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pos %d: got %q want %q (seq=%v)", i, got[i], want[i], got)
		}
	}
	if g := c.Group("Text"); g.DisplayOrder != nil {
		t.Fatalf("non-numeric displayOrder should be unset, got %v", *g.DisplayOrder)
	}
	if g := c.Group("Half"); g.DisplayOrder == nil || *g.DisplayOrder != 1.5 {
		t.Fatalf("fractional displayOrder lost: %v", g.DisplayOrder)
	}
}

func TestSortGroupsIdempotent(t *testing.T) {
	one, three := 1.0, 3.0
	groups := []*Group{
		{ID: "x", Name: "x"},
		{ID: "c", Name: "C", DisplayOrder: &three},
		{ID: "b", Name: "b", DisplayOrder: &one},
		{ID: "a", Name: "A", DisplayOrder: &one},
		{ID: "y", Name: "X"},
	}
	SortGroups(groups)
	order := func() []string {
		var ids []string
		for _, g := range groups {
			ids = append(ids, g.ID)
		}
		return ids
	}
	want := []string{"a", "b", "c", "x", "y"}
	got := order()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pos %d: got %q want %q (seq=%v)", i, got[i], want[i], got)
		}
	}
	SortGroups(groups)
	again := order()
	for i := range got {
		if got[i] != again[i] {
			t.Fatalf("second sort changed order: %v -> %v", got, again)
		}
	}
}

func TestReadGroupFileError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `[1, 2`)
	_, err := ReadGroupFile(filepath.Join(dir, "bad.json"))
	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FileError, got %v", err)
	}
	if fe.Path != filepath.Join(dir, "bad.json") {
		t.Fatalf("unexpected path %q", fe.Path)
	}
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		q    Quest
		want string
	}{
		{Quest{ID: "MQ01", Name: "Find the Amulet"}, "MQ01"},
		{Quest{Name: "Find the Amulet"}, "Find the Amulet"},
		{Quest{EditorID: "MQ01"}, "unknown"},
		{Quest{}, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.q.Key(); got != tt.want {
			t.Errorf("Key(%+v) = %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestTitles(t *testing.T) {
	if got := (Quest{EditorID: "MS05"}).Title(); got != "MS05" {
		t.Errorf("quest title fallback: %q", got)
	}
	if got := (Quest{}).Title(); got != "Unknown Quest" {
		t.Errorf("quest title default: %q", got)
	}
	if got := (&Group{ID: "Cities"}).Title(); got != "Cities" {
		t.Errorf("group title fallback: %q", got)
	}
	if got := (&Group{}).Title(); got != "Quest Group" {
		t.Errorf("group title default: %q", got)
	}
}
