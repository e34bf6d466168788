package app

import (
	"strings"

	"github.com/jmoiron/questcompanion/internal/app/textfmt"
	"github.com/jmoiron/questcompanion/internal/reconcile"
)

// searchTerms splits a query into lowercased terms.
func searchTerms(q string) []string {
	return strings.Fields(strings.ToLower(q))
}

// matchQuest reports whether all terms appear as substrings in any of the
// quest's text fields (name, editor id, description or city). Terms should
// be pre-split and lowercased.
func matchQuest(q reconcile.QuestView, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	fields := []string{
		strings.ToLower(q.Quest.Name),
		strings.ToLower(q.Quest.EditorID),
		strings.ToLower(textfmt.Plain(q.Quest.Description)),
		strings.ToLower(q.Quest.City),
	}
	for _, term := range terms {
		found := false
		for _, f := range fields {
			if strings.Contains(f, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// filterQuests applies the hide-completed preference and the search terms.
func filterQuests(g reconcile.GroupView, hideCompleted bool, terms []string) []reconcile.QuestView {
	var out []reconcile.QuestView
	for _, q := range g.Visible(hideCompleted) {
		if matchQuest(q, terms) {
			out = append(out, q)
		}
	}
	return out
}
