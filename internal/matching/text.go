package matching

import (
	"strings"
	"unicode"
)

const minKeywordLength = 3

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "that": true, "this": true, "are": true, "was": true,
	"has": true, "have": true, "you": true, "your": true, "our": true,
	"not": true, "but": true, "all": true, "any": true, "can": true,
	"its": true, "per": true, "via": true, "www": true,
}

// synonymGroups maps a canonical keyword to words that mean the same thing
// on a statement line.
var synonymGroups = map[string][]string{
	"payment":  {"pay", "paid", "transfer", "sent"},
	"purchase": {"buy", "bought", "charge", "debit"},
	"deposit":  {"credit", "received", "income"},
	"fee":      {"charge", "cost", "service"},
	"refund":   {"return", "returned", "credit"},
}

// tokenize lower-cases a description and splits it on whitespace.
func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// wordOverlap is the share of tokens in a that are a substring of, or
// contain, some token in b, over the larger token count.
func wordOverlap(a, b string) float64 {
	wordsA := tokenize(a)
	wordsB := tokenize(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	common := 0
	for _, wa := range wordsA {
		for _, wb := range wordsB {
			if strings.Contains(wa, wb) || strings.Contains(wb, wa) {
				common++
				break
			}
		}
	}

	return float64(common) / float64(max(len(wordsA), len(wordsB)))
}

// extractKeywords keeps alphanumeric words of at least three characters that
// are not stop words.
func extractKeywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minKeywordLength || stopWords[f] {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

// semanticOverlap is the share of keywords in a that match a keyword in b
// exactly, as a substring, or through the synonym table.
func semanticOverlap(a, b string) float64 {
	keywordsA := extractKeywords(a)
	keywordsB := extractKeywords(b)
	if len(keywordsA) == 0 || len(keywordsB) == 0 {
		return 0
	}

	matched := 0
	for _, ka := range keywordsA {
		for _, kb := range keywordsB {
			if keywordsMatch(ka, kb) {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(max(len(keywordsA), len(keywordsB)))
}

func keywordsMatch(a, b string) bool {
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return areSynonyms(a, b)
}

func areSynonyms(a, b string) bool {
	for base, synonyms := range synonymGroups {
		if inGroup(a, base, synonyms) && inGroup(b, base, synonyms) {
			return true
		}
	}
	return false
}

func inGroup(word, base string, synonyms []string) bool {
	if word == base {
		return true
	}
	for _, s := range synonyms {
		if word == s {
			return true
		}
	}
	return false
}

// descriptionSimilarity blends token overlap with keyword overlap.
func descriptionSimilarity(a, b string) float64 {
	return 0.7*wordOverlap(a, b) + 0.3*semanticOverlap(a, b)
}
