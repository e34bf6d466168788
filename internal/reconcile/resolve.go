package reconcile

import (
	"github.com/jmoiron/questcompanion/internal/catalog"
	"github.com/jmoiron/questcompanion/internal/progress"
	"github.com/jmoiron/questcompanion/internal/settings"
)

// Label is one of the three derived quest states.
type Label string

const (
	NotStarted Label = "Not Started"
	InProgress Label = "In Progress"
	Completed  Label = "Completed"
)

// Class returns the CSS class used to render the label.
func (l Label) Class() string {
	switch l {
	case Completed:
		return "completed"
	case InProgress:
		return "in-progress"
	}
	return "not-started"
}

// Status is the derived state of one quest.
type Status struct {
	Label      Label `json:"label"`
	Overridden bool  `json:"overridden,omitempty"`
}

// Resolve derives a quest's status from its matched record (nil when
// unmatched) and the override mapping. An override always wins.
func Resolve(q catalog.Quest, rec *progress.Record, overrides settings.Overrides) Status {
	if overrides.Completed(q.Key()) {
		return Status{Label: Completed, Overridden: true}
	}
	if rec == nil {
		return Status{Label: NotStarted}
	}
	if q.CompletionStages.Contains(rec.Stage) {
		return Status{Label: Completed}
	}
	if rec.Stage > 0 {
		return Status{Label: InProgress}
	}
	return Status{Label: NotStarted}
}
