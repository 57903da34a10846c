package search

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"torrentstream/resolverservice/internal/domain"
)

const localLanguageTag = "ITA"

var localQueryTokens = map[string]struct{}{
	"ita":      {},
	"italian":  {},
	"italiano": {},
}

// titleAliases maps a lower-cased title fragment to the abbreviation release
// groups commonly use for it.
var titleAliases = []struct {
	fragment string
	alias    string
}{
	{fragment: "game of thrones", alias: "GoT"},
	{fragment: "il trono di spade", alias: "GoT"},
	{fragment: "the walking dead", alias: "TWD"},
	{fragment: "fear the walking dead", alias: "FTWD"},
	{fragment: "how i met your mother", alias: "HIMYM"},
	{fragment: "the big bang theory", alias: "TBBT"},
	{fragment: "it's always sunny in philadelphia", alias: "IASIP"},
	{fragment: "marvel's agents of s.h.i.e.l.d.", alias: "Agents of SHIELD"},
	{fragment: "la casa di carta", alias: "Money Heist"},
	{fragment: "the handmaid's tale", alias: "Handmaids Tale"},
}

// ExpandQueries builds the set of search strings for a resolved media item.
// It performs no I/O and returns the same slice, in the same order, for the
// same input. In strict mode every term lacking the local language tag also
// gets a tagged sibling.
func ExpandQueries(q domain.MediaQuery, strict bool) []string {
	titles := expansionTitles(q)
	if len(titles) == 0 {
		return nil
	}

	terms := newTermSet()
	if q.IsSeries {
		expandSeries(terms, titles, q)
	} else {
		expandMovie(terms, titles, q.Year)
	}

	if strict {
		for _, term := range terms.snapshot() {
			if !hasAnyToken(term, localQueryTokens) {
				terms.add(term + " " + localLanguageTag)
			}
		}
	}
	return terms.items
}

func expandMovie(terms *termSet, titles []string, year int) {
	for _, title := range titles {
		terms.add(title)
		if year > 0 {
			y := strconv.Itoa(year)
			terms.add(title + " " + y)
			terms.add(title + " " + y + " " + localLanguageTag)
			terms.add(title + " " + y + " 4k")
			terms.add(title + " " + y + " 1080p")
		}
		terms.add(title + " " + localLanguageTag)
		terms.add(title + " Multi")
	}
}

func expandSeries(terms *termSet, titles []string, q domain.MediaQuery) {
	codes := episodeCodes(q.Season, q.Episode)
	for _, title := range titles {
		for _, code := range codes {
			terms.add(title + " " + code)
			terms.add(title + " " + code + " " + localLanguageTag)
			terms.add(title + " " + code + " 1080p")
		}
		if q.Episode == 1 {
			terms.add(fmt.Sprintf("%s Stagione %d Completa", title, q.Season))
			terms.add(fmt.Sprintf("%s Stagione %d", title, q.Season))
			terms.add(fmt.Sprintf("%s S%02d", title, q.Season))
		}
	}

	sxe := codes[0]
	for _, alias := range matchingAliases(q.Title, q.OriginalTitle) {
		terms.add(alias + " " + sxe)
	}
}

func episodeCodes(season, episode int) []string {
	return []string{
		fmt.Sprintf("S%02dE%02d", season, episode),
		fmt.Sprintf("%dx%02d", season, episode),
		fmt.Sprintf("Stagione %d Episodio %d", season, episode),
	}
}

func matchingAliases(titles ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, entry := range titleAliases {
		for _, title := range titles {
			if !strings.Contains(strings.ToLower(title), entry.fragment) {
				continue
			}
			if _, ok := seen[entry.alias]; !ok {
				seen[entry.alias] = struct{}{}
				out = append(out, entry.alias)
			}
			break
		}
	}
	return out
}

// expansionTitles returns the title, the original title and their
// punctuation-free forms, in that order, without duplicates.
func expansionTitles(q domain.MediaQuery) []string {
	seen := make(map[string]struct{}, 4)
	out := make([]string, 0, 4)
	add := func(value string) {
		value = collapseSpaces(value)
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	for _, title := range []string{q.Title, q.OriginalTitle} {
		add(title)
		add(stripPunctuation(foldAccents(title)))
	}
	return out
}

func foldAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}

func stripPunctuation(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r == '\'' || r == '’':
			// "Grey's" -> "Greys"
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return collapseSpaces(b.String())
}

func collapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func hasAnyToken(input string, tokens map[string]struct{}) bool {
	for _, token := range tokenize(input) {
		if _, ok := tokens[token]; ok {
			return true
		}
	}
	return false
}

// tokenize lower-cases input and splits it on anything that is not a letter
// or digit, so "Show.S01E01.ITA-GRP" yields show, s01e01, ita, grp.
func tokenize(input string) []string {
	return strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type termSet struct {
	items []string
	seen  map[string]struct{}
}

func newTermSet() *termSet {
	return &termSet{seen: make(map[string]struct{})}
}

func (s *termSet) add(term string) {
	term = collapseSpaces(term)
	if term == "" {
		return
	}
	if _, ok := s.seen[term]; ok {
		return
	}
	s.seen[term] = struct{}{}
	s.items = append(s.items, term)
}

func (s *termSet) snapshot() []string {
	return append([]string(nil), s.items...)
}
