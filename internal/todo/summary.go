package todo

import "strings"

// Summary aggregates a user's todos the way summarize_todos reports them.
type Summary struct {
	Total         int            `json:"total"`
	Completed     int            `json:"completed"`
	Pending       int            `json:"pending"`
	ByPriority    map[string]int `json:"by_priority"`
	PendingTitles []PendingTitle `json:"pending_titles"`
}

type PendingTitle struct {
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
}

// Summarize counts pending todos per priority and lists their titles.
func Summarize(todos []*Todo) Summary {
	s := Summary{
		Total: len(todos),
		ByPriority: map[string]int{
			"high":   0,
			"medium": 0,
			"low":    0,
		},
		PendingTitles: make([]PendingTitle, 0),
	}
	for _, t := range todos {
		if t.Completed {
			s.Completed++
			continue
		}
		s.Pending++
		s.ByPriority[strings.ToLower(string(t.Priority))]++
		s.PendingTitles = append(s.PendingTitles, PendingTitle{Title: t.Title, Priority: t.Priority})
	}
	return s
}
