package reconcile

import (
	"github.com/jmoiron/questcompanion/internal/catalog"
	"github.com/jmoiron/questcompanion/internal/progress"
	"github.com/jmoiron/questcompanion/internal/settings"
)

// QuestView is one reconciled quest.
type QuestView struct {
	Quest  catalog.Quest `json:"quest"`
	Key    string        `json:"key"`
	Status Status        `json:"status"`
	// Stage is nil when the quest has no matching progress record.
	Stage *int `json:"stage"`
}

// Title is the quest's display title.
func (q QuestView) Title() string { return q.Quest.Title() }

// CanToggle reports whether the override toggle is offered: quests that
// are overridden, or not yet completed by progress.
func (q QuestView) CanToggle() bool {
	return q.Status.Overridden || q.Status.Label != Completed
}

// CitiesGroupID is the group whose quests are labelled with their city.
const CitiesGroupID = "Cities"

// GroupView is one reconciled quest group.
type GroupView struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Icon      string      `json:"icon,omitempty"`
	Quests    []QuestView `json:"quests"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
}

// Percent is the completed share of the group, 0..100.
func (g GroupView) Percent() float64 {
	if g.Total == 0 {
		return 0
	}
	return float64(g.Completed) / float64(g.Total) * 100
}

// ShowsCity reports whether quest cities are displayed for g.
func (g GroupView) ShowsCity() bool { return g.ID == CitiesGroupID }

// Visible returns the quests to display, dropping completed ones when
// hideCompleted is set.
func (g GroupView) Visible(hideCompleted bool) []QuestView {
	if !hideCompleted {
		return g.Quests
	}
	out := make([]QuestView, 0, len(g.Quests))
	for _, q := range g.Quests {
		if q.Status.Label != Completed {
			out = append(out, q)
		}
	}
	return out
}

// View is the full reconciled state pushed to the presentation layer.
type View struct {
	Groups         []GroupView `json:"groups"`
	Completed      int         `json:"completed"`
	Total          int         `json:"total"`
	GeneratedAtUTC string      `json:"generatedAtUtc,omitempty"`
}

// Group returns the group view with id, or nil.
func (v View) Group(id string) *GroupView {
	for i := range v.Groups {
		if v.Groups[i].ID == id {
			return &v.Groups[i]
		}
	}
	return nil
}

// Build matches and resolves every catalog quest against snap and
// overrides. It is recomputed wholesale on every change; snap may be nil.
func Build(cat *catalog.Catalog, snap *progress.Snapshot, overrides settings.Overrides) View {
	ix := NewIndex(snap)
	v := View{Groups: make([]GroupView, 0, len(cat.Groups))}
	if snap != nil {
		v.GeneratedAtUTC = snap.GeneratedAtUTC
	}
	for _, g := range cat.Groups {
		gv := GroupView{
			ID:     g.ID,
			Title:  g.Title(),
			Icon:   g.Icon,
			Quests: make([]QuestView, 0, len(g.Quests)),
			Total:  len(g.Quests),
		}
		for _, q := range g.Quests {
			rec := ix.Match(q)
			qv := QuestView{Quest: q, Key: q.Key(), Status: Resolve(q, rec, overrides)}
			if rec != nil {
				stage := rec.Stage
				qv.Stage = &stage
			}
			if qv.Status.Label == Completed {
				gv.Completed++
			}
			gv.Quests = append(gv.Quests, qv)
		}
		v.Completed += gv.Completed
		v.Total += gv.Total
		v.Groups = append(v.Groups, gv)
	}
	return v
}
