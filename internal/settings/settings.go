package settings

import (
	"encoding/json"
	"strings"
	"time"
)

// Override is a user-asserted completion flag for one quest.
type Override struct {
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Overrides maps quest identity keys to overrides. Only completed entries
// are kept; clearing an override deletes its key.
type Overrides map[string]Override

// Completed reports whether key is forced to Completed.
func (o Overrides) Completed(key string) bool {
	return o[key].Completed
}

// Clone returns a copy of o that is safe to hand to callers.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Preferences are the user's display preferences.
type Preferences struct {
	DarkMode         bool `json:"darkMode"`
	HideCompleted    bool `json:"hideCompleted"`
	HideDescriptions bool `json:"hideDescriptions"`
}

// DefaultPreferences returns the preferences used when none are stored.
func DefaultPreferences() Preferences {
	return Preferences{}
}

// PreferencesUpdate is a partial preferences change; nil fields are left
// as they are.
type PreferencesUpdate struct {
	DarkMode         *bool `json:"darkMode,omitempty"`
	HideCompleted    *bool `json:"hideCompleted,omitempty"`
	HideDescriptions *bool `json:"hideDescriptions,omitempty"`
}

// Apply returns p with the non-nil fields of u applied.
func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.DarkMode != nil {
		p.DarkMode = *u.DarkMode
	}
	if u.HideCompleted != nil {
		p.HideCompleted = *u.HideCompleted
	}
	if u.HideDescriptions != nil {
		p.HideDescriptions = *u.HideDescriptions
	}
	return p
}

// Settings is the persisted union of the progress path, overrides and
// preferences. ProgressPath is "" when no source is configured.
type Settings struct {
	ProgressPath string
	Overrides    Overrides
	Preferences  Preferences
}

// Normalize fills every missing field with its default.
func (s Settings) Normalize() Settings {
	out := Settings{
		ProgressPath: strings.TrimSpace(s.ProgressPath),
		Overrides:    make(Overrides, len(s.Overrides)),
		Preferences:  s.Preferences,
	}
	for k, v := range s.Overrides {
		if v.Completed {
			out.Overrides[k] = v
		}
	}
	return out
}

// document is the on-disk shape of Settings.
type document struct {
	ProgressPath *string          `json:"progressPath"`
	Overrides    Overrides        `json:"overrides"`
	Preferences  *json.RawMessage `json:"preferences"`
}

// MarshalJSON writes the primary settings document.
func (s Settings) MarshalJSON() ([]byte, error) {
	n := s.Normalize()
	doc := struct {
		ProgressPath *string     `json:"progressPath"`
		Overrides    Overrides   `json:"overrides"`
		Preferences  Preferences `json:"preferences"`
	}{Overrides: n.Overrides, Preferences: n.Preferences}
	if n.ProgressPath != "" {
		doc.ProgressPath = &n.ProgressPath
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a primary settings document. Missing preference keys
// keep their defaults.
func (s *Settings) UnmarshalJSON(b []byte) error {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	prefs := DefaultPreferences()
	if doc.Preferences != nil && string(*doc.Preferences) != "null" {
		if err := json.Unmarshal(*doc.Preferences, &prefs); err != nil {
			return err
		}
	}
	out := Settings{Overrides: doc.Overrides, Preferences: prefs}
	if doc.ProgressPath != nil {
		out.ProgressPath = *doc.ProgressPath
	}
	*s = out.Normalize()
	return nil
}
