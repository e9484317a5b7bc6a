package openai

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const maxAnalysisChars = 12000

const analysisSystemPrompt = `You catalogue educational and business documents.
Reply with one JSON object and nothing else.`

const answerSystemPrompt = `You answer questions about the user's documents.
Use only the provided sources. If they are insufficient, say so directly.
Cite sources as [n].`

func buildAnalysisPrompt(filename, text string) string {
	runes := []rune(text)
	if len(runes) > maxAnalysisChars {
		runes = runes[:maxAnalysisChars]
	}

	return `Describe the document below. Return a JSON object with keys:
summary (string, 2-4 sentences, same language as the document),
keywords (array of up to 10 strings),
topics (array of up to 5 strings),
categories (array of up to 3 broad subject areas in lower case),
confidence (number from 0 to 1).

File name: ` + filename + `

Document:
` + string(runes)
}

func buildAnswerPrompt(question string, sources []domain.SearchHit) string {
	var b strings.Builder
	for idx, src := range sources {
		fmt.Fprintf(&b, "[%d] file=%s score=%.3f\nsummary: %s\n%s\n\n",
			idx+1,
			src.OriginalName,
			src.Score,
			src.Summary,
			src.TextPreview,
		)
	}

	return fmt.Sprintf(`Question:
%s

Sources:
%s
`, question, b.String())
}
