package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// maxTextRunes bounds how much extracted text goes into one request.
const maxTextRunes = 24000

// SemanticSchema is the JSON schema the consistency answer must follow.
const SemanticSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["score", "contradictions"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "contradictions": {
      "type": "array",
      "maxItems": 50,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

// SemanticSystemPrompt gives the model strict directions for the
// consistency check.
func SemanticSystemPrompt() string {
	return `You are a document compliance analyst checking an extracted contract, identity document or agreement for internal consistency. You must produce one valid JSON object only (no markdown, no commentary, no code fences).

Requirements:
- "score" is a consistency score from 0 to 100; 100 means no contradictions at all.
- "contradictions" lists each contradiction as one short sentence naming the conflicting values (dates, amounts, names, identifiers).
- Only report contradictions visible in the provided text. Do not guess about content that is not shown.
- Missing information alone is not a contradiction.

Schema (example):
{"score": 92, "contradictions": ["effective date 2024-03-01 is after termination date 2024-02-01"]}`
}

// SemanticUserPrompt wraps the extraction output.
func SemanticUserPrompt(ext document.Extraction) string {
	var b strings.Builder
	b.WriteString("Check the following document text for contradictions and respond with the JSON per schema.\n")
	if n := ext.Entities; len(n.Names)+len(n.Dates)+len(n.Amounts) > 0 {
		fmt.Fprintf(&b, "Extracted names: %s\n", strings.Join(n.Names, "; "))
		fmt.Fprintf(&b, "Extracted dates: %s\n", strings.Join(n.Dates, "; "))
		fmt.Fprintf(&b, "Extracted amounts: %s\n", strings.Join(n.Amounts, "; "))
	}
	b.WriteString("Text:\n")
	b.WriteString(truncate(ext.Text, maxTextRunes))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n[truncated]"
}
