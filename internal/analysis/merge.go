package analysis

import (
	"strings"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// MergeStandardResults combines per-chunk results in chunk order. Summaries
// become paragraphs; list entries are deduplicated by key, first occurrence wins.
func MergeStandardResults(partials []models.StandardResult) models.StandardResult {
	out := models.StandardResult{
		Milestones:    []models.Milestone{},
		Requirements:  []models.Requirement{},
		OpenQuestions: []models.OpenQuestion{},
		Metadata:      []models.MetadataEntry{},
	}

	var summaries []string
	seenMilestones := map[string]bool{}
	seenRequirements := map[string]bool{}
	seenQuestions := map[string]bool{}
	seenMetadata := map[string]bool{}

	for _, p := range partials {
		if s := strings.TrimSpace(p.Summary); s != "" {
			summaries = append(summaries, s)
		}
		for _, m := range p.Milestones {
			if first(seenMilestones, dedupKey(m.Title, deref(m.Date))) {
				out.Milestones = append(out.Milestones, m)
			}
		}
		for _, r := range p.Requirements {
			if first(seenRequirements, dedupKey(r.Title, deref(r.Category))) {
				out.Requirements = append(out.Requirements, r)
			}
		}
		for _, q := range p.OpenQuestions {
			if first(seenQuestions, dedupKey(q.Question)) {
				out.OpenQuestions = append(out.OpenQuestions, q)
			}
		}
		for _, m := range p.Metadata {
			if first(seenMetadata, dedupKey(m.Label)) {
				out.Metadata = append(out.Metadata, m)
			}
		}
	}

	out.Summary = strings.Join(summaries, "\n\n")
	return out
}

func first(seen map[string]bool, key string) bool {
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}

// dedupKey joins the trimmed parts with a NUL separator.
func dedupKey(parts ...string) string {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "\x00")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
