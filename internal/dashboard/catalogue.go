package dashboard

import (
	"sort"
	"strings"

	"session-marketplace/internal/model"
)

// Categories lists the distinct non-empty categories of sessions, sorted.
func Categories(sessions []model.Session) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, s := range sessions {
		category := strings.TrimSpace(s.Category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// FilterByCategory keeps sessions whose category matches, ignoring case.
// An empty or "all" category keeps everything.
func FilterByCategory(sessions []model.Session, category string) []model.Session {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return sessions
	}

	out := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if strings.EqualFold(strings.TrimSpace(s.Category), category) {
			out = append(out, s)
		}
	}
	return out
}
