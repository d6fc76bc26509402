// Package readability computes structural and readability metrics for Korean text.
// All functions are pure and deterministic.
package readability

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	hangulSyllableFirst = '가'
	hangulSyllableLast  = '힣'

	sentenceLengthWeight = 0.6
	syllableLengthWeight = 0.4
)

var sentenceBreak = regexp.MustCompile(`[.?!]+`)

var punctuationStripper = strings.NewReplacer(
	".", "",
	",", "",
	"?", "",
	"!", "",
	"'", "",
	`"`, "",
)

// Metrics describes one text snapshot.
type Metrics struct {
	CharCount             int     `json:"charCount"`
	WordCount             int     `json:"wordCount"`
	SentenceCount         int     `json:"sentenceCount"`
	SyllableCount         int     `json:"syllableCount"`
	StopwordCount         int     `json:"stopwordCount"`
	AvgSentenceLength     float64 `json:"avgSentenceLength"`
	AvgWordSyllableLength float64 `json:"avgWordSyllableLength"`
	ReadabilityScore      float64 `json:"readabilityScore"`
}

// Analyze computes Metrics for text. Empty input yields all-zero metrics.
// Lower ReadabilityScore means easier text.
func Analyze(text string) Metrics {
	words := Words(text)
	m := Metrics{
		CharCount:     utf8.RuneCountInString(text),
		WordCount:     len(words),
		SentenceCount: len(Sentences(text)),
		SyllableCount: CountSyllables(text),
		StopwordCount: CountStopwords(words),
	}
	m.AvgSentenceLength = safeDiv(float64(m.WordCount), float64(m.SentenceCount))
	m.AvgWordSyllableLength = safeDiv(float64(m.SyllableCount), float64(m.WordCount))
	m.ReadabilityScore = sentenceLengthWeight*m.AvgSentenceLength + syllableLengthWeight*m.AvgWordSyllableLength
	return m
}

// Sentences splits text on runs of '.', '?' and '!' and drops blank fragments.
func Sentences(text string) []string {
	parts := sentenceBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Words strips the fixed punctuation set and splits on whitespace.
func Words(text string) []string {
	return strings.Fields(punctuationStripper.Replace(strings.TrimSpace(text)))
}

// CountSyllables counts precomposed Hangul syllables (U+AC00..U+D7A3).
// Latin letters, digits, punctuation and whitespace are not counted.
func CountSyllables(text string) int {
	n := 0
	for _, r := range text {
		if r >= hangulSyllableFirst && r <= hangulSyllableLast {
			n++
		}
	}
	return n
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
