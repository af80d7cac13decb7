package chat

import "strings"

// Filter narrows an already-fetched conversation collection by
// participant name and conversation type. query matches participant
// display names by case-insensitive substring; groups selects between
// group and direct conversations. Pure and synchronous; the input slice
// is never modified.
func Filter(conversations []Conversation, query string, groups bool) []Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.IsGroup != groups {
			continue
		}
		if q != "" && !hasParticipantMatch(c, q) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasParticipantMatch(c Conversation, q string) bool {
	for _, u := range c.Participants {
		if strings.Contains(strings.ToLower(u.Name), q) {
			return true
		}
	}
	return false
}
