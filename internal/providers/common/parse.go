package common

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// AppendYear adds the release year to a search term unless the term already
// carries it.
func AppendYear(term string, year int) string {
	term = strings.TrimSpace(term)
	if year <= 0 || term == "" {
		return term
	}
	y := strconv.Itoa(year)
	for _, field := range strings.Fields(term) {
		if field == y {
			return term
		}
	}
	return term + " " + y
}
