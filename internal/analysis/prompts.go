package analysis

import (
	"fmt"
	"strings"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// Output token budgets per model call.
const (
	StandardMaxOutputTokens  = 4000
	CriterionMaxOutputTokens = 1500
)

const standardSystemPrompt = `You analyze procurement and tender documents. Respond with JSON only, matching this shape exactly:
{"summary": string,
 "milestones": [{"title": string, "date": string|null, "citation": {"page": integer, "quote": string}|null}],
 "requirements": [{"title": string, "category": string|null, "notes": string|null, "citation": {"page": integer, "quote": string}|null}],
 "openQuestions": [{"question": string, "citation": {"page": integer, "quote": string}|null}],
 "metadata": [{"label": string, "value": string, "citation": {"page": integer, "quote": string}|null}]}
Cite page numbers exactly as labeled in the excerpt. Quotes must be verbatim. Use empty arrays when nothing applies.`

const criterionSystemPrompt = `You check whether tender documents satisfy one evaluation criterion. Respond with JSON only, matching this shape exactly:
{"status": "found"|"not_found"|"partial",
 "comment": string|null,
 "answer": string|null,
 "score": number|null,
 "citations": [{"page": integer, "quote": string}]}
Cite page numbers exactly as labeled in the documents. Quotes must be verbatim.`

func standardUserPrompt(chunk Chunk, total int) string {
	return fmt.Sprintf("Document excerpt %d of %d:\n\n%s", chunk.Index+1, total, chunk.Text)
}

func criterionUserPrompt(c models.Criterion, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Criterion: %s\n", c.Title)
	if c.Description != nil && strings.TrimSpace(*c.Description) != "" {
		fmt.Fprintf(&b, "Description: %s\n", *c.Description)
	}
	if c.Hints != nil && strings.TrimSpace(*c.Hints) != "" {
		fmt.Fprintf(&b, "Hints: %s\n", *c.Hints)
	}
	fmt.Fprintf(&b, "Answer type: %s\n", c.AnswerType)
	fmt.Fprintf(&b, "Weight: %d\n", c.Weight)
	fmt.Fprintf(&b, "Required: %t\n", c.Required)
	if len(c.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(c.Keywords, ", "))
	}
	b.WriteString("\nDocuments:\n\n")
	b.WriteString(context)
	return b.String()
}
