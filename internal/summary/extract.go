package summary

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "with": {},
	"that": {}, "this": {}, "but": {}, "not": {}, "you": {}, "his": {}, "her": {},
	"she": {}, "they": {}, "them": {}, "has": {}, "have": {}, "had": {}, "from": {},
	"its": {}, "into": {}, "than": {}, "then": {}, "also": {}, "very": {}, "can": {},
	"will": {}, "our": {}, "out": {}, "all": {}, "any": {}, "who": {}, "what": {},
	"is": {}, "in": {}, "of": {}, "to": {}, "a": {}, "an": {}, "on": {}, "at": {},
	"it": {}, "be": {}, "as": {}, "by": {}, "or": {}, "he": {}, "we": {}, "i": {},
}

// Extract is the local summarizer: it keeps the n sentences whose words are
// most frequent across the text, in their original order.
func Extract(text string, n int) string {
	sentences := splitSentences(text)
	if n <= 0 || len(sentences) <= n {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	tokenized := make([][]string, len(sentences))
	maxFreq := 0.0
	for i, sentence := range sentences {
		tokenized[i] = words(sentence)
		for _, word := range tokenized[i] {
			freq[word]++
			if freq[word] > maxFreq {
				maxFreq = freq[word]
			}
		}
	}

	type scored struct {
		index int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, tokens := range tokenized {
		total := 0.0
		for _, word := range tokens {
			total += freq[word] / maxFreq
		}
		scores[i] = scored{index: i, score: total}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})
	keep := scores[:n]
	sort.Slice(keep, func(a, b int) bool {
		return keep[a].index < keep[b].index
	})

	out := make([]string, 0, n)
	for _, s := range keep {
		out = append(out, sentences[s.index])
	}
	return strings.Join(out, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		sentence := strings.Join(strings.Fields(current.String()), " ")
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if isTerminator(r) {
			next := i + 1
			if next == len(runes) || unicode.IsSpace(runes[next]) {
				flush()
			}
		}
	}
	flush()
	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func words(sentence string) []string {
	fields := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, field := range fields {
		if utf8.RuneCountInString(field) < 2 {
			continue
		}
		if _, ok := stopwords[field]; ok {
			continue
		}
		out = append(out, field)
	}
	return out
}
