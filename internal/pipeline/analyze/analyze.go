// Package analyze implements Stage 2 of the pipeline driver: building
// the LLM request for one file (content plus retrieved context chunks)
// and parsing the response into analysis content, dependencies, and
// AnalysisItems.
package analyze

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qs3c/repoanalyzer/internal/adapter/llm"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/model"
)

const systemPrompt = `You analyze a single source file from a larger repository. ` +
	`Respond with a JSON object: {"analysis": string, "items": [{"title": string, ` +
	`"description": string, "source_excerpt": string, "start_line": int, "end_line": int}]}.`

// BuildRequest shapes the chat messages sent to the LLM adapter for
// one file, embedding up to len(contextChunks) retrieved snippets as
// surrounding context (spec §4.3 Stage 2).
func BuildRequest(file *model.FileAnalysis, contextChunks []vectorindex.Chunk, modelID string, tokenBudget int) llm.CompleteRequest {
	var ctxBuilder strings.Builder
	for _, c := range contextChunks {
		fmt.Fprintf(&ctxBuilder, "### %s (%s, lines %d-%d)\n%s\n\n", c.File, c.Language, c.StartLine, c.EndLine, c.Content)
	}

	user := fmt.Sprintf("File: %s\nLanguage: %s\n\nRelated context:\n%s\n---\nFile content:\n%s",
		file.FilePath, file.Language, ctxBuilder.String(), file.CodeContent)

	return llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		ModelID:     modelID,
		TokenBudget: tokenBudget,
	}
}

type llmItem struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	SourceExcerpt string `json:"source_excerpt"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
}

type llmPayload struct {
	Analysis string    `json:"analysis"`
	Items    []llmItem `json:"items"`
}

// ParseResponse extracts analysis content and items from the LLM's
// text output. A non-JSON response degrades gracefully to a single
// analysis-content blob with no items, rather than failing the file.
func ParseResponse(text string, fileAnalysisID int64) (analysisContent string, items []*model.AnalysisItem) {
	var payload llmPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return text, nil
	}

	items = make([]*model.AnalysisItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.StartLine > 0 && it.EndLine > 0 && it.StartLine > it.EndLine {
			it.EndLine = it.StartLine
		}
		items = append(items, &model.AnalysisItem{
			FileAnalysisID: fileAnalysisID,
			Title:          it.Title,
			Description:    it.Description,
			SourceExcerpt:  it.SourceExcerpt,
			StartLine:      it.StartLine,
			EndLine:        it.EndLine,
		})
	}
	return payload.Analysis, items
}
