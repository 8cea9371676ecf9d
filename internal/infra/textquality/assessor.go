// Package textquality scores the extracted text layer of a document for
// encoding damage and character-level substitutions.
package textquality

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

const (
	issuePenalty     = 15.0
	replacementRatio = 0.01
	controlRatio     = 0.005
	minLetters       = 40
)

// Assessor implements document.FormatAssessor locally; it never blocks.
type Assessor struct{}

var _ document.FormatAssessor = Assessor{}

// AssessFormat checks the text layer. Each issue costs a fixed penalty.
func (Assessor) AssessFormat(ctx context.Context, ext document.Extraction) (document.FormatResult, error) {
	if err := ctx.Err(); err != nil {
		return document.FormatResult{}, err
	}
	if strings.TrimSpace(ext.Text) == "" {
		return document.FormatResult{Score: 0, Issues: []string{"no text was extracted"}}, nil
	}

	var issues []string
	var total, letters, replacement, control, fullwidth int
	for _, r := range ext.Text {
		total++
		switch {
		case r == unicode.ReplacementChar:
			replacement++
		case unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t':
			control++
		case unicode.IsLetter(r):
			letters++
			if width.LookupRune(r).Kind() == width.EastAsianFullwidth && width.Narrow.String(string(r)) != string(r) {
				fullwidth++
			}
		}
	}
	if float64(replacement)/float64(total) > replacementRatio {
		issues = append(issues, fmt.Sprintf("%d undecodable characters in the text layer", replacement))
	}
	if float64(control)/float64(total) > controlRatio {
		issues = append(issues, fmt.Sprintf("%d control characters in the text layer", control))
	}
	if letters < minLetters {
		issues = append(issues, fmt.Sprintf("only %d letters extracted", letters))
	}
	if fullwidth > 0 {
		issues = append(issues, fmt.Sprintf("%d full-width letters mixed into the text", fullwidth))
	}
	if !norm.NFC.IsNormalString(ext.Text) {
		issues = append(issues, "text is not in canonical composed form")
	}
	if words := mixedScriptWords(ext.Text); len(words) > 0 {
		issues = append(issues, fmt.Sprintf("words mixing Latin with Cyrillic or Greek letters: %s", strings.Join(words, ", ")))
	}
	for i, p := range ext.Pages {
		if strings.TrimSpace(p) == "" {
			issues = append(issues, fmt.Sprintf("page %d has no text", i+1))
		}
	}

	return document.FormatResult{
		Score:  document.Clamp(100 - issuePenalty*float64(len(issues))),
		Issues: issues,
	}, nil
}

// mixedScriptWords finds look-alike substitutions such as a Cyrillic "а"
// inside a Latin word. At most five words are returned.
func mixedScriptWords(text string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		var latin, other bool
		for _, r := range w {
			switch {
			case unicode.Is(unicode.Latin, r):
				latin = true
			case unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Greek, r):
				other = true
			}
		}
		if latin && other {
			out = append(out, fmt.Sprintf("%q", w))
			if len(out) == 5 {
				break
			}
		}
	}
	return out
}
