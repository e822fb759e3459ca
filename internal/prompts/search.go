package prompts

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Query filters Search. Empty fields match everything.
type Query struct {
	Text     string
	Category string
	// Tags matches records carrying at least one of them.
	Tags []string
}

func (q Query) match(p *Prompt) bool {
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	if len(q.Tags) > 0 && !slices.ContainsFunc(q.Tags, func(t string) bool { return slices.Contains(p.Tags, t) }) {
		return false
	}
	if q.Text != "" {
		haystack := strings.ToLower(p.Name + " " + p.Description + " " + p.Prompt)
		if !strings.Contains(haystack, strings.ToLower(q.Text)) {
			return false
		}
	}
	return true
}

// Search returns matching records, most used first. Among equal counts the
// most recently used wins and never-used records go last; creation time and
// then id keep the order stable.
func (l *Library) Search(q Query) []Prompt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Prompt{}
	for _, p := range l.prompts {
		if q.match(p) {
			out = append(out, p.clone())
		}
	}
	slices.SortFunc(out, byUsage)
	return out
}

func byUsage(a, b Prompt) int {
	if c := cmp.Compare(b.UseCount, a.UseCount); c != 0 {
		return c
	}
	if c := compareRecent(a.LastUsed, b.LastUsed); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// compareRecent orders later timestamps first and nil last.
func compareRecent(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return b.Compare(*a)
}

type UsageRef struct {
	Name     string     `json:"name"`
	UseCount int        `json:"use_count,omitempty"`
	LastUsed *time.Time `json:"last_used,omitempty"`
}

type Stats struct {
	TotalPrompts int       `json:"total_prompts"`
	TotalUses    int       `json:"total_uses"`
	Categories   int       `json:"categories"`
	Tags         int       `json:"tags"`
	MostUsed     *UsageRef `json:"most_used"`
	RecentUsed   *UsageRef `json:"recent_used"`
}

func (l *Library) Stats() Stats {
	cats, tags := len(l.Categories()), len(l.Tags())

	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Stats{TotalPrompts: len(l.prompts), Categories: cats, Tags: tags}
	var most, recent *Prompt
	for _, p := range l.prompts {
		st.TotalUses += p.UseCount
		if p.UseCount > 0 && (most == nil || byUsage(*p, *most) < 0) {
			most = p
		}
		if p.LastUsed != nil && (recent == nil || p.LastUsed.After(*recent.LastUsed)) {
			recent = p
		}
	}
	if most != nil {
		st.MostUsed = &UsageRef{Name: most.Name, UseCount: most.UseCount}
	}
	if recent != nil {
		t := *recent.LastUsed
		st.RecentUsed = &UsageRef{Name: recent.Name, LastUsed: &t}
	}
	return st
}
