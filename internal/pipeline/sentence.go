package pipeline

import "strings"

// sentenceBuffer accumulates streamed tokens and splits at sentence boundaries.
type sentenceBuffer struct {
	buf strings.Builder
}

// Add appends a token and returns any complete sentence ready for TTS.
// Returns empty string if no sentence boundary detected yet.
func (s *sentenceBuffer) Add(token string) string {
	s.buf.WriteString(token)
	text := s.buf.String()
	complete, remainder := splitAtSentence(text)
	if complete == "" {
		return ""
	}
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return complete
}

// Flush returns any remaining text in the buffer.
func (s *sentenceBuffer) Flush() string {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return text
}

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// abbreviations are single-word tokens ending in '.' that are never
// sentence boundaries even when followed by whitespace. Matched
// case-sensitively against the word immediately preceding the period.
var abbreviations = map[string]bool{
	"Mr": true, "Mrs": true, "Ms": true, "Dr": true, "Prof": true,
	"Sr": true, "Jr": true, "St": true, "Mt": true,
	"vs": true, "etc": true, "e.g": true, "i.e": true, "Inc": true, "Ltd": true, "Co": true,
	"Jan": true, "Feb": true, "Mar": true, "Apr": true, "Jun": true,
	"Jul": true, "Aug": true, "Sep": true, "Sept": true, "Oct": true, "Nov": true, "Dec": true,
}

// splitAtSentence finds the last sentence boundary in text.
// A boundary is a sentence ender (.!?) followed by whitespace, excluding
// false positives on abbreviations ("Dr.", "Mr.") and decimal numbers
// ("3.14") — a naive whitespace-following match fragments LLM output
// mid-word on both.
// Returns (completeSentences, remainder). If no boundary, returns ("", text).
func splitAtSentence(text string) (string, string) {
	lastIdx := -1
	for i := range len(text) - 1 {
		if sentenceEnders[text[i]] && isWordBoundary(text[i+1]) && !isFalsePositive(text, i) {
			lastIdx = i + 1
		}
	}
	if lastIdx < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:lastIdx]), text[lastIdx:]
}

// isFalsePositive reports whether the sentence-ender at text[idx] is
// actually part of an abbreviation or a decimal number rather than a true
// sentence boundary.
func isFalsePositive(text string, idx int) bool {
	if text[idx] != '.' {
		return false // only '.' is ambiguous; '!' and '?' never are
	}
	if idx > 0 && isDigit(text[idx-1]) && idx+1 < len(text) && isDigit(text[idx+1]) {
		return true // decimal number, e.g. "3.14"
	}
	if idx > 0 && isDigit(text[idx-1]) {
		// Trailing digit before '.': only a false positive when another
		// digit follows later with no boundary between — handled above.
		// A lone trailing digit ("done at 5.") is a real sentence end.
	}
	word := precedingWord(text, idx)
	return abbreviations[word]
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// precedingWord returns the run of non-whitespace characters immediately
// before text[idx] (the '.' itself), used to test against abbreviations.
func precedingWord(text string, idx int) string {
	start := idx
	for start > 0 && !isWordBoundary(text[start-1]) {
		start--
	}
	return text[start:idx]
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
