package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var nameStopWords = map[string]struct{}{"the": {}, "and": {}, "&": {}}

func RemoveWhiteSpace(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
}

// RemoveAllSymbols keeps letters, digits and spaces. Other whitespace becomes a plain space.
func RemoveAllSymbols(input string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, input)
}

// FoldText applies NFKC, drops symbols and lower-cases. Casers are not safe for
// concurrent use, so one is built per call.
func FoldText(input string) string {
	s := norm.NFKC.String(input)
	s = RemoveAllSymbols(s)
	return cases.Lower(language.Und).String(s)
}

func FilterWords(words []string, stop map[string]struct{}) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out = append(out, w)
	}
	return out
}

// NameKeywords folds a venue name and splits it into non-empty keywords without stop-words.
func NameKeywords(name string) []string {
	return FilterWords(strings.Fields(FoldText(name)), nameStopWords)
}

func CityKeywords(city string) []string {
	return strings.Fields(FoldText(city))
}

func NormalizePostalCode(value string) string {
	return RemoveWhiteSpace(value)
}

// NormalizePhone returns the bare digits of a plausible phone number or "".
func NormalizePhone(value string) string {
	if value == "" {
		return ""
	}
	phone := strings.ReplaceAll(RemoveWhiteSpace(value), "-", "")
	if phone == "" {
		return ""
	}

	allZero := true
	for _, r := range phone {
		if r < '0' || r > '9' {
			return ""
		}
		if r != '0' {
			allZero = false
		}
	}
	if allZero {
		return ""
	}
	if len(phone) < 10 || len(phone) > 11 {
		return ""
	}
	return phone
}

// Tail returns the last n bytes of s and false when s is shorter than n.
func Tail(s string, n int) (string, bool) {
	if n <= 0 || len(s) < n {
		return "", false
	}
	return s[len(s)-n:], true
}

func CollapseSpaces(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
