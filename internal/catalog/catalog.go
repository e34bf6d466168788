package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// Catalog is the static set of quest groups loaded from a data directory.
// It is not modified after Load returns.
type Catalog struct {
	Groups []*Group `json:"groups"`

	groupMap map[string]*Group
}

// Group is one quest-group document.
type Group struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Icon         string   `json:"icon,omitempty"`
	DisplayOrder *float64 `json:"displayOrder,omitempty"`
	Quests       []Quest  `json:"quests"`
}

// UnmarshalJSON decodes a group document. A displayOrder that is not a
// number is treated as absent.
func (g *Group) UnmarshalJSON(data []byte) error {
	type plain Group
	var doc struct {
		*plain
		DisplayOrder json.RawMessage `json:"displayOrder"`
	}
	doc.plain = (*plain)(g)
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	g.DisplayOrder = nil
	if len(doc.DisplayOrder) > 0 {
		var n *float64
		if err := json.Unmarshal(doc.DisplayOrder, &n); err == nil {
			g.DisplayOrder = n
		}
	}
	return nil
}

// Title returns the display title for the group.
func (g *Group) Title() string {
	switch {
	case g.Name != "":
		return g.Name
	case g.ID != "":
		return g.ID
	}
	return "Quest Group"
}

// Quest is a single catalog entry. Every field is optional.
type Quest struct {
	ID               string   `json:"id,omitempty"`
	Name             string   `json:"name,omitempty"`
	EditorID         string   `json:"editorId,omitempty"`
	FormID           string   `json:"formId,omitempty"`
	Description      string   `json:"description,omitempty"`
	Link             string   `json:"link,omitempty"`
	City             string   `json:"city,omitempty"`
	CompletionStages StageSet `json:"completionStages,omitempty"`
}

// Key returns the quest's identity key: id, then name, then "unknown".
func (q Quest) Key() string {
	return IdentityKey(q)
}

// IdentityKey is the string used to correlate a quest with overrides.
func IdentityKey(q Quest) string {
	if q.ID != "" {
		return q.ID
	}
	if q.Name != "" {
		return q.Name
	}
	return "unknown"
}

// Title returns the display title for the quest.
func (q Quest) Title() string {
	switch {
	case q.Name != "":
		return q.Name
	case q.EditorID != "":
		return q.EditorID
	}
	return "Unknown Quest"
}

// StageSet is the set of stage values that mark a quest complete. Null
// entries in the source document are dropped while decoding.
type StageSet []int

// UnmarshalJSON implements json.Unmarshaler.
func (s *StageSet) UnmarshalJSON(b []byte) error {
	var raw []*int
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(StageSet, 0, len(raw))
	for _, v := range raw {
		if v != nil {
			out = append(out, *v)
		}
	}
	*s = out
	return nil
}

// Contains reports whether stage is a completing stage.
func (s StageSet) Contains(stage int) bool {
	for _, v := range s {
		if v == stage {
			return true
		}
	}
	return false
}

// FileError is a group file that could not be read or parsed. Load logs
// and skips these; it never returns one.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("quest data %s: %v", e.Path, e.Err) }
func (e *FileError) Unwrap() error { return e.Err }

// Load reads every *.json file directly inside dir as one Group. Files that
// fail to parse are skipped with a warning. A missing dir yields an empty
// catalog.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("quest data directory missing", "dir", dir)
			return newCatalog(nil), nil
		}
		return nil, fmt.Errorf("reading quest data: %w", err)
	}

	var groups []*Group
	for _, e := range entries {
		// skip directories and non-json files
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		g, err := ReadGroupFile(path)
		if err != nil {
			slog.Warn("skipping quest data file", "error", err)
			continue
		}
		if g == nil {
			continue
		}
		groups = append(groups, g)
	}

	SortGroups(groups)
	return newCatalog(groups), nil
}

// ReadGroupFile reads one group document. The file may carry // comments
// and trailing commas. A document that is JSON null yields (nil, nil).
func ReadGroupFile(path string) (*Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	var g *Group
	if err := json.Unmarshal(jsonc.ToJSON(data), &g); err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return g, nil
}

// SortGroups orders groups by DisplayOrder ascending, groups without one
// last, ties broken by case-insensitive name. Equal keys keep their input
// order, so repeated sorts are idempotent.
func SortGroups(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		oi, oj := order(groups[i]), order(groups[j])
		if oi != oj {
			return oi < oj
		}
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
}

func order(g *Group) float64 {
	if g.DisplayOrder == nil || math.IsNaN(*g.DisplayOrder) {
		return math.Inf(1)
	}
	return *g.DisplayOrder
}

func newCatalog(groups []*Group) *Catalog {
	if groups == nil {
		groups = []*Group{}
	}
	c := &Catalog{Groups: groups, groupMap: make(map[string]*Group, len(groups))}
	for _, g := range groups {
		// first group wins on duplicate ids
		if _, ok := c.groupMap[g.ID]; !ok {
			c.groupMap[g.ID] = g
		}
	}
	return c
}

// Group returns the group with the given id, or nil.
func (c *Catalog) Group(id string) *Group {
	return c.groupMap[id]
}

// QuestCount is the number of quests across all groups.
func (c *Catalog) QuestCount() int {
	var n int
	for _, g := range c.Groups {
		n += len(g.Quests)
	}
	return n
}
