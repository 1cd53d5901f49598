// Package trigger derives short key-phrases from memory content and matches
// them against prompts without going through the search engines.
package trigger

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	// DefaultMaxPhrases caps extraction output.
	DefaultMaxPhrases = 10
	maxPhraseWords    = 4
)

// stopWords are common words excluded from trigger phrases.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "its": true, "let": true, "may": true, "who": true,
	"did": true, "get": true, "got": true, "him": true, "his": true,
	"how": true, "man": true, "new": true, "now": true, "old": true,
	"see": true, "way": true, "day": true, "too": true, "use": true,
	"that": true, "with": true, "have": true, "this": true, "will": true,
	"your": true, "from": true, "they": true, "been": true, "said": true,
	"each": true, "which": true, "their": true, "what": true, "about": true,
	"would": true, "there": true, "when": true, "make": true, "like": true,
	"just": true, "know": true, "take": true, "come": true, "could": true,
	"than": true, "look": true, "only": true, "into": true, "over": true,
	"such": true, "also": true, "back": true, "some": true, "them": true,
	"then": true, "these": true, "where": true, "much": true, "should": true,
	"well": true, "after": true, "very": true, "most": true, "other": true,
	"more": true, "does": true, "doing": true, "were": true, "being": true,
	"a": true, "an": true, "as": true, "at": true, "be": true, "by": true,
	"do": true, "if": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "so": true, "to": true, "up": true, "we": true,
	"i": true, "me": true, "my": true, "no": true, "he": true, "she": true,
}

type candidate struct {
	phrase string
	words  int
	count  int
	first  int // token index of first occurrence, for deterministic ties
}

// Extract derives ordered, deduplicated trigger phrases (1-4 words) from
// text. Phrases are built from stopword-free token runs and ranked by a
// TF-IDF-like statistic: term frequency weighted by within-document word
// rarity and a phrase-length bonus. The output is deterministic for
// identical input.
func Extract(text string, maxPhrases int) []string {
	if maxPhrases <= 0 {
		maxPhrases = DefaultMaxPhrases
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	// Within-document word frequencies for the rarity statistic.
	wordFreq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		wordFreq[tok.word]++
	}

	cands := collectCandidates(tokens)
	if len(cands) == 0 {
		return nil
	}

	total := float64(len(tokens))
	scored := make([]candidate, 0, len(cands))
	for _, c := range cands {
		scored = append(scored, *c)
	}

	score := func(c candidate) float64 {
		words := strings.Fields(c.phrase)
		var rarity float64
		for _, w := range words {
			rarity += logish(total / float64(wordFreq[w]))
		}
		rarity /= float64(len(words))
		lengthBonus := 1.0 + 0.5*float64(c.words-1)
		return float64(c.count) * rarity * lengthBonus
	}

	sort.Slice(scored, func(i, j int) bool {
		si, sj := score(scored[i]), score(scored[j])
		if si != sj {
			return si > sj
		}
		if scored[i].first != scored[j].first {
			return scored[i].first < scored[j].first
		}
		return scored[i].phrase < scored[j].phrase
	})

	if len(scored) > maxPhrases {
		scored = scored[:maxPhrases]
	}
	phrases := make([]string, len(scored))
	for i, c := range scored {
		phrases[i] = c.phrase
	}
	return phrases
}

type token struct {
	word string
	pos  int
	stop bool
}

func tokenize(text string) []token {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]token, 0, len(fields))
	for i, f := range fields {
		if len(f) < 2 && !stopWords[f] {
			// Single characters carry no signal but must still break runs
			// only when they are stopwords; skip them entirely otherwise.
			continue
		}
		tokens = append(tokens, token{word: f, pos: i, stop: stopWords[f]})
	}
	return tokens
}

// collectCandidates emits every 1-4 word n-gram inside stopword-free runs.
func collectCandidates(tokens []token) map[string]*candidate {
	cands := make(map[string]*candidate)

	var run []token
	flush := func() {
		for n := 1; n <= maxPhraseWords; n++ {
			for i := 0; i+n <= len(run); i++ {
				gram := run[i : i+n]
				if n == 1 && len(gram[0].word) < 3 {
					continue
				}
				words := make([]string, n)
				for j, t := range gram {
					words[j] = t.word
				}
				phrase := strings.Join(words, " ")
				if c, ok := cands[phrase]; ok {
					c.count++
				} else {
					cands[phrase] = &candidate{phrase: phrase, words: n, count: 1, first: gram[0].pos}
				}
			}
		}
		run = run[:0]
	}

	for _, t := range tokens {
		if t.stop {
			flush()
			continue
		}
		run = append(run, t)
	}
	flush()

	return cands
}

func logish(x float64) float64 {
	return math.Log1p(x)
}
