package pipeline

import "testing"

func TestSentenceBufferSplitsOnBoundary(t *testing.T) {
	var sb sentenceBuffer
	if got := sb.Add("Hello there. "); got != "Hello there." {
		t.Fatalf("expected first sentence emitted, got %q", got)
	}
}

func TestSentenceBufferHoldsAbbreviation(t *testing.T) {
	var sb sentenceBuffer
	if got := sb.Add("Please ask Dr. Smith about it. "); got != "Please ask Dr. Smith about it." {
		t.Fatalf("expected abbreviation not to split the sentence early, got %q", got)
	}
}

func TestSentenceBufferHoldsDecimal(t *testing.T) {
	var sb sentenceBuffer
	if got := sb.Add("The total is 3.14 dollars. "); got != "The total is 3.14 dollars." {
		t.Fatalf("expected decimal number not to split the sentence early, got %q", got)
	}
}

func TestSentenceBufferHandlesMultipleAbbreviations(t *testing.T) {
	var sb sentenceBuffer
	got := sb.Add("Mr. Jones and Mrs. Lee will attend. ")
	if got != "Mr. Jones and Mrs. Lee will attend." {
		t.Fatalf("expected both abbreviations held without early split, got %q", got)
	}
}

func TestSentenceBufferFlushReturnsRemainder(t *testing.T) {
	var sb sentenceBuffer
	sb.Add("No boundary yet")
	if got := sb.Flush(); got != "No boundary yet" {
		t.Fatalf("expected flush to return the unflushed remainder, got %q", got)
	}
}

func TestSentenceBufferHoldsEgAbbreviation(t *testing.T) {
	var sb sentenceBuffer
	got := sb.Add("Bring ID, e.g. a passport. ")
	if got != "Bring ID, e.g. a passport." {
		t.Fatalf("expected e.g. not to split the sentence early, got %q", got)
	}
}

func TestSentenceBufferHoldsIeAbbreviation(t *testing.T) {
	var sb sentenceBuffer
	got := sb.Add("The default, i.e. 9 to 5, applies. ")
	if got != "The default, i.e. 9 to 5, applies." {
		t.Fatalf("expected i.e. not to split the sentence early, got %q", got)
	}
}

func TestSplitAtSentenceNoFalsePositiveOnTrailingDigitPeriod(t *testing.T) {
	complete, remainder := splitAtSentence("Call me at 5. ")
	if complete != "Call me at 5." {
		t.Fatalf("expected a trailing-digit period with no following digit to be a real boundary, got %q / %q", complete, remainder)
	}
}
