package readability

// stopwords is a closed set of Korean particles, conjunctions and function words.
// Matching is exact on whole tokens; no stemming or particle splitting is done.
var stopwords = map[string]struct{}{
	"이": {}, "그": {}, "저": {}, "것": {}, "수": {}, "등": {}, "들": {}, "및": {},
	"은": {}, "는": {}, "가": {}, "을": {}, "를": {}, "에": {}, "의": {}, "와": {},
	"과": {}, "도": {}, "로": {}, "으로": {}, "에서": {}, "에게": {}, "께": {}, "한테": {},
	"부터": {}, "까지": {}, "보다": {}, "처럼": {}, "만": {}, "또": {}, "또는": {}, "혹은": {},
	"그리고": {}, "그러나": {}, "하지만": {}, "그런데": {}, "그래서": {}, "따라서": {}, "그러므로": {}, "또한": {},
	"즉": {}, "혹시": {}, "이것": {}, "그것": {}, "저것": {}, "여기": {}, "거기": {}, "저기": {},
	"이런": {}, "그런": {}, "저런": {}, "어떤": {}, "무슨": {}, "모든": {}, "각": {}, "몇": {},
	"하다": {}, "한다": {}, "했다": {}, "하는": {}, "있다": {}, "있는": {}, "없다": {}, "없는": {},
	"되다": {}, "된다": {}, "되는": {}, "이다": {}, "아니다": {}, "같은": {}, "같이": {}, "위해": {},
	"위한": {}, "대한": {}, "대해": {}, "통해": {}, "때문에": {}, "경우": {}, "때": {}, "중": {},
	"더": {}, "덜": {}, "매우": {}, "아주": {}, "너무": {}, "잘": {}, "못": {}, "안": {},
	"좀": {}, "다": {}, "다시": {}, "바로": {}, "이미": {}, "아직": {}, "곧": {}, "한편": {},
}

// IsStopword reports whether token is in the closed stopword list.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// CountStopwords counts tokens present in the stopword list.
func CountStopwords(words []string) int {
	n := 0
	for _, w := range words {
		if IsStopword(w) {
			n++
		}
	}
	return n
}
