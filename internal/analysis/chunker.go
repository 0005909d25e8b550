package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// Chunk is a contiguous group of pages sent to the model in one call.
type Chunk struct {
	Index int
	Pages []models.DocumentPage
	Text  string
}

// ChunkPages orders pages by (document index, page number) and splits them
// into groups of at most maxPagesPerChunk. The input slice is not modified.
func ChunkPages(pages []models.DocumentPage, maxPagesPerChunk int) ([]Chunk, error) {
	if maxPagesPerChunk < 1 {
		return nil, fmt.Errorf("pages per chunk must be at least 1, got %d", maxPagesPerChunk)
	}
	sorted := sortPages(pages)

	chunks := make([]Chunk, 0, (len(sorted)+maxPagesPerChunk-1)/maxPagesPerChunk)
	for start := 0; start < len(sorted); start += maxPagesPerChunk {
		end := start + maxPagesPerChunk
		if end > len(sorted) {
			end = len(sorted)
		}
		group := sorted[start:end]
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Pages: group,
			Text:  render(group),
		})
	}
	return chunks, nil
}

// RenderPages renders every page, in order, as one context block.
func RenderPages(pages []models.DocumentPage) string {
	return render(sortPages(pages))
}

func sortPages(pages []models.DocumentPage) []models.DocumentPage {
	sorted := make([]models.DocumentPage, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DocumentIndex != sorted[j].DocumentIndex {
			return sorted[i].DocumentIndex < sorted[j].DocumentIndex
		}
		return sorted[i].Number < sorted[j].Number
	})
	return sorted
}

func render(pages []models.DocumentPage) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Page %d:\n%s", p.Number, p.Text)
	}
	return b.String()
}
