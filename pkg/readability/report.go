package readability

import (
	"fmt"
	"math"
	"strings"
)

// Report compares an original text snapshot with its simplified rewrite.
// Each ratio is (original - simplified) / original and is 0 when the original
// metric is 0. Ratios are not clamped: a longer or harder rewrite yields a
// negative value.
type Report struct {
	Original               Metrics `json:"original"`
	Simplified             Metrics `json:"simplified"`
	CharCountReduction     float64 `json:"charCountReduction"`
	WordCountReduction     float64 `json:"wordCountReduction"`
	StopwordReductionCount float64 `json:"stopwordReductionCount"`
	ReadabilityImprovement float64 `json:"readabilityImprovement"`
	Summary                string  `json:"summary"`
}

// Compare analyzes both snapshots and builds the report.
func Compare(original, simplified string) Report {
	return CompareMetrics(Analyze(original), Analyze(simplified))
}

// CompareMetrics builds a report from precomputed metrics.
func CompareMetrics(original, simplified Metrics) Report {
	r := Report{
		Original:               original,
		Simplified:             simplified,
		CharCountReduction:     reduction(float64(original.CharCount), float64(simplified.CharCount)),
		WordCountReduction:     reduction(float64(original.WordCount), float64(simplified.WordCount)),
		StopwordReductionCount: reduction(float64(original.StopwordCount), float64(simplified.StopwordCount)),
		ReadabilityImprovement: reduction(original.ReadabilityScore, simplified.ReadabilityScore),
	}
	r.Summary = summarize(r)
	return r
}

func reduction(original, simplified float64) float64 {
	if original == 0 {
		return 0
	}
	return (original - simplified) / original
}

// Percent converts a ratio to a whole-number percentage. Only the summary is
// rounded; the report keeps the exact ratios.
func Percent(ratio float64) int {
	return int(math.Round(ratio * 100))
}

func summarize(r Report) string {
	var b strings.Builder
	readability := Percent(r.ReadabilityImprovement)
	switch {
	case readability > 0:
		fmt.Fprintf(&b, "가독성 점수가 %d%% 개선되었습니다.", readability)
	case readability < 0:
		fmt.Fprintf(&b, "가독성 점수가 %d%% 높아져 원문보다 읽기 어려워졌습니다.", -readability)
	default:
		b.WriteString("가독성 점수에는 변화가 없습니다.")
	}
	fmt.Fprintf(&b, " 글자 수 %s, 단어 수 %s, 불용어 %s.",
		describe(Percent(r.CharCountReduction)),
		describe(Percent(r.WordCountReduction)),
		describe(Percent(r.StopwordReductionCount)),
	)
	return b.String()
}

func describe(pct int) string {
	switch {
	case pct > 0:
		return fmt.Sprintf("%d%% 감소", pct)
	case pct < 0:
		return fmt.Sprintf("%d%% 증가", -pct)
	default:
		return "변화 없음"
	}
}
