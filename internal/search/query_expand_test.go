package search

import (
	"testing"

	"torrentstream/resolverservice/internal/domain"
)

func TestExpandQueriesSeriesStrictScenario(t *testing.T) {
	q := domain.MediaQuery{Title: "Show", Year: 2020, IsSeries: true, Season: 1, Episode: 1}

	terms := ExpandQueries(q, true)
	for _, want := range []string{
		"Show S01E01 ITA",
		"Show Stagione 1 Completa",
		"Show Stagione 1 Completa ITA",
		"Show 1x01",
		"Show Stagione 1 Episodio 1",
	} {
		if !containsTerm(terms, want) {
			t.Fatalf("expected %q in %v", want, terms)
		}
	}
	assertNoDuplicates(t, terms)
}

func TestExpandQueriesSeriesSkipsSeasonPackAfterFirstEpisode(t *testing.T) {
	q := domain.MediaQuery{Title: "Show", IsSeries: true, Season: 2, Episode: 5}

	terms := ExpandQueries(q, false)
	if containsTerm(terms, "Show Stagione 2 Completa") {
		t.Fatalf("season pack term must only appear for episode 1: %v", terms)
	}
	if !containsTerm(terms, "Show S02E05") || !containsTerm(terms, "Show 2x05") {
		t.Fatalf("missing episode codes: %v", terms)
	}
	for _, term := range terms {
		if hasAnyToken(term, localQueryTokens) && term != "Show S02E05 ITA" && term != "Show 2x05 ITA" && term != "Show Stagione 2 Episodio 5 ITA" {
			t.Fatalf("non-strict mode added unexpected tagged term %q", term)
		}
	}
}

func TestExpandQueriesMovieVariants(t *testing.T) {
	q := domain.MediaQuery{Title: "Amélie: Il favoloso mondo", OriginalTitle: "Le Fabuleux Destin d'Amélie Poulain", Year: 2001}

	terms := ExpandQueries(q, false)
	for _, want := range []string{
		"Amélie: Il favoloso mondo 2001",
		"Amélie: Il favoloso mondo 2001 ITA",
		"Amélie: Il favoloso mondo Multi",
		"Amélie: Il favoloso mondo 2001 4k",
		"Amelie Il favoloso mondo 2001",
		"Le Fabuleux Destin dAmelie Poulain 2001",
	} {
		if !containsTerm(terms, want) {
			t.Fatalf("expected %q in %v", want, terms)
		}
	}
	assertNoDuplicates(t, terms)
}

func TestExpandQueriesStrictAddsSiblingsWithoutReplacing(t *testing.T) {
	q := domain.MediaQuery{Title: "Movie", Year: 1999}

	loose := ExpandQueries(q, false)
	strict := ExpandQueries(q, true)
	for _, term := range loose {
		if !containsTerm(strict, term) {
			t.Fatalf("strict mode dropped %q", term)
		}
		if !hasAnyToken(term, localQueryTokens) && !containsTerm(strict, term+" ITA") {
			t.Fatalf("strict mode missing sibling for %q", term)
		}
	}
	if containsTerm(strict, "Movie 1999 ITA ITA") {
		t.Fatalf("tagged term must not be tagged twice: %v", strict)
	}
}

func TestExpandQueriesAliases(t *testing.T) {
	q := domain.MediaQuery{Title: "Il Trono di Spade", OriginalTitle: "Game of Thrones", IsSeries: true, Season: 3, Episode: 9}

	terms := ExpandQueries(q, false)
	if !containsTerm(terms, "GoT S03E09") {
		t.Fatalf("expected alias term in %v", terms)
	}
	count := 0
	for _, term := range terms {
		if term == "GoT S03E09" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("alias matched twice must still yield one term, got %d", count)
	}
}

func TestExpandQueriesDeterministicAndNonEmpty(t *testing.T) {
	queries := []domain.MediaQuery{
		{Title: "X"},
		{Title: "  Spaced   Title  ", Year: 2010},
		{Title: "Show", IsSeries: true, Season: 10, Episode: 12},
		{Title: "!!!", OriginalTitle: "???"},
	}
	for _, q := range queries {
		for _, strict := range []bool{false, true} {
			first := ExpandQueries(q, strict)
			second := ExpandQueries(q, strict)
			if len(first) == 0 {
				t.Fatalf("empty expansion for %+v", q)
			}
			if len(first) != len(second) {
				t.Fatalf("non-deterministic expansion for %+v", q)
			}
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("non-deterministic order for %+v: %q vs %q", q, first[i], second[i])
				}
			}
			assertNoDuplicates(t, first)
		}
	}
}

func TestExpandQueriesEmptyTitle(t *testing.T) {
	if got := ExpandQueries(domain.MediaQuery{Year: 2020}, true); len(got) != 0 {
		t.Fatalf("expected no terms without a title, got %v", got)
	}
}

func containsTerm(terms []string, want string) bool {
	for _, term := range terms {
		if term == want {
			return true
		}
	}
	return false
}

func assertNoDuplicates(t *testing.T, terms []string) {
	t.Helper()
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			t.Fatalf("duplicate term %q", term)
		}
		seen[term] = struct{}{}
	}
}
