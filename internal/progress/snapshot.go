package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Snapshot is the parsed contents of a progress file. A new Snapshot
// replaces the previous one wholesale on every read.
type Snapshot struct {
	GeneratedAtUTC string   `json:"generated_at_utc,omitempty"`
	QuestCount     *int     `json:"quest_count,omitempty"`
	Quests         []Record `json:"quests"`
}

// Record is one quest entry in a progress file.
type Record struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	FormID string `json:"form_id,omitempty"`
	Stage  int    `json:"stage"`
}

type wireRecord struct {
	ID     *string `json:"id"`
	Name   *string `json:"name"`
	FormID *string `json:"form_id"`
	Stage  *int    `json:"stage"`
}

type wireSnapshot struct {
	GeneratedAtUTC *string       `json:"generated_at_utc"`
	QuestCount     *int          `json:"quest_count"`
	Quests         *[]wireRecord `json:"quests"`
}

// Parse decodes and validates a progress document. The top level must be an
// object and every quest must carry an integer stage.
func Parse(data []byte) (*Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty progress document")
	}
	if data[0] != '{' {
		return nil, errors.New("progress document must be a JSON object")
	}

	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	s := &Snapshot{QuestCount: w.QuestCount, Quests: []Record{}}
	if w.GeneratedAtUTC != nil {
		s.GeneratedAtUTC = *w.GeneratedAtUTC
	}
	if w.Quests == nil {
		return s, nil
	}
	for i, wr := range *w.Quests {
		if wr.Stage == nil {
			return nil, fmt.Errorf("quests[%d]: missing stage", i)
		}
		s.Quests = append(s.Quests, Record{
			ID:     deref(wr.ID),
			Name:   deref(wr.Name),
			FormID: deref(wr.FormID),
			Stage:  *wr.Stage,
		})
	}
	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReadFile reads and parses the progress file at path.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

var formIDPattern = regexp.MustCompile(`^(?i:0x)?[0-9A-Fa-f]+$`)

// ValidFormID reports whether s is a hexadecimal form id, optionally
// prefixed with 0x.
func ValidFormID(s string) bool {
	return formIDPattern.MatchString(s)
}

// NormalizeFormID strips an optional 0x/0X prefix and upper-cases the rest.
func NormalizeFormID(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return strings.ToUpper(s)
}
