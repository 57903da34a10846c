package search

import (
	"regexp"
	"strconv"
	"strings"

	"torrentstream/resolverservice/internal/domain"
)

var (
	magnetHashPattern     = regexp.MustCompile(`(?i)[0-9a-f]{40}`)
	seasonEpisodePattern  = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])s0*(\d{1,3})[ ._-]?e0*(\d{1,4})(?:[^0-9]|$)`)
	seasonXEpisodePattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^0-9]|$)`)
	italianEpisodePattern = regexp.MustCompile(`(?i)stagione\s*0*(\d{1,3})\s*episodio\s*0*(\d{1,4})`)
	seasonWordPattern     = regexp.MustCompile(`(?i)(?:stagione|season|serie)\s*0*(\d{1,3})(?:[^0-9]|$)`)
	bareSeasonPattern     = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])s0*(\d{1,3})(?:[^a-z0-9]|$)`)
	completePackPattern   = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:complet[ao]|complete|integrale)(?:[^a-z]|$)`)
)

var (
	localMarkerTokens = map[string]struct{}{
		"ita": {}, "italian": {}, "italiano": {},
	}
	multiMarkerTokens = map[string]struct{}{
		"multi": {}, "multilang": {}, "multilanguage": {},
	}
	foreignMarkerTokens = map[string]struct{}{
		"eng": {}, "english": {},
		"fra": {}, "fre": {}, "french": {}, "truefrench": {}, "vostfr": {}, "vff": {},
		"spa": {}, "esp": {}, "spanish": {}, "castellano": {}, "latino": {},
		"ger": {}, "deu": {}, "german": {},
		"rus": {}, "russian": {},
		"jpn": {}, "japanese": {},
		"kor": {}, "korean": {},
		"hindi": {},
	}
	ultraHDTokens = map[string]struct{}{
		"2160p": {}, "4k": {}, "uhd": {},
	}
	camTokens = map[string]struct{}{
		"cam": {}, "camrip": {}, "hdcam": {},
		"ts": {}, "telesync": {}, "hdts": {}, "tsrip": {},
		"scr": {}, "screener": {}, "dvdscr": {},
		"tc": {}, "hdtc": {}, "telecine": {},
	}
)

// UniqueCandidate is a validated candidate keyed by its upper-case info-hash,
// or by the full magnet URI when no hash could be extracted.
type UniqueCandidate struct {
	domain.CandidateRecord
	InfoHash string
	Key      string
}

type NormalizeOptions struct {
	Strict         bool
	ExcludeUltraHD bool
	ExcludeCam     bool
	IsSeries       bool
	Season         int
	Episode        int
	LocalSources   map[string]bool
}

func normalizeOptionsFor(q domain.MediaQuery, cfg domain.UserConfig, localSources map[string]bool) NormalizeOptions {
	return NormalizeOptions{
		Strict:         cfg.LocalLanguageOnly,
		ExcludeUltraHD: cfg.ExcludeUltraHD,
		ExcludeCam:     cfg.ExcludeCam,
		IsSeries:       q.IsSeries,
		Season:         q.Season,
		Episode:        q.Episode,
		LocalSources:   localSources,
	}
}

type NormalizeStats struct {
	Invalid    int
	Language   int
	Episode    int
	Filtered   int
	Duplicates int
}

func (s NormalizeStats) Dropped() int {
	return s.Invalid + s.Language + s.Episode + s.Filtered + s.Duplicates
}

// Normalize validates, filters and deduplicates raw candidates. The first
// record seen for a key wins; later ones are discarded without merging.
func Normalize(records []domain.CandidateRecord, opts NormalizeOptions) ([]UniqueCandidate, NormalizeStats) {
	var stats NormalizeStats
	out := make([]UniqueCandidate, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, record := range records {
		record.Title = strings.TrimSpace(record.Title)
		record.MagnetURI = strings.TrimSpace(record.MagnetURI)
		if record.Title == "" || record.MagnetURI == "" {
			stats.Invalid++
			continue
		}

		tokens := tokenSet(record.Title)
		if opts.Strict && !isLanguageSafe(tokens, opts.LocalSources[sourceKey(record.Source)]) {
			stats.Language++
			continue
		}
		if opts.IsSeries && !matchesEpisode(record.Title, opts.Season, opts.Episode) {
			stats.Episode++
			continue
		}
		if opts.ExcludeUltraHD && containsAny(tokens, ultraHDTokens) {
			stats.Filtered++
			continue
		}
		if opts.ExcludeCam && containsAny(tokens, camTokens) {
			stats.Filtered++
			continue
		}

		hash := strings.ToUpper(magnetHashPattern.FindString(record.MagnetURI))
		key := hash
		if key == "" {
			key = record.MagnetURI
		}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, UniqueCandidate{CandidateRecord: record, InfoHash: hash, Key: key})
	}
	return out, stats
}

// isLanguageSafe is closed-world: only an explicit local marker, a multi
// marker without foreign-only markers, or a local-only source passes.
// sourceKey is the registry form of an adapter name.
func sourceKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isLanguageSafe(tokens map[string]struct{}, localSource bool) bool {
	if localSource {
		return true
	}
	if containsAny(tokens, localMarkerTokens) {
		return true
	}
	if containsAny(tokens, multiMarkerTokens) && !containsAny(tokens, foreignMarkerTokens) {
		return true
	}
	return false
}

// matchesEpisode reports whether title targets season/episode. Titles that
// carry explicit episode codes must match one of them exactly; otherwise only
// season packs qualify, and only for the first episode.
func matchesEpisode(title string, season, episode int) bool {
	codes := episodeCodesIn(title)
	if len(codes) > 0 {
		for _, code := range codes {
			if code[0] == season && code[1] == episode {
				return true
			}
		}
		return false
	}
	if episode != 1 {
		return false
	}

	seasons := seasonMarkersIn(title)
	if len(seasons) > 0 {
		for _, s := range seasons {
			if s == season {
				return true
			}
		}
		return false
	}
	return completePackPattern.MatchString(title)
}

func episodeCodesIn(title string) [][2]int {
	var codes [][2]int
	for _, pattern := range []*regexp.Regexp{seasonEpisodePattern, seasonXEpisodePattern, italianEpisodePattern} {
		for _, m := range pattern.FindAllStringSubmatch(title, -1) {
			s, errS := strconv.Atoi(m[1])
			e, errE := strconv.Atoi(m[2])
			if errS != nil || errE != nil {
				continue
			}
			codes = append(codes, [2]int{s, e})
		}
	}
	return codes
}

func seasonMarkersIn(title string) []int {
	var seasons []int
	for _, pattern := range []*regexp.Regexp{seasonWordPattern, bareSeasonPattern} {
		for _, m := range pattern.FindAllStringSubmatch(title, -1) {
			if s, err := strconv.Atoi(m[1]); err == nil {
				seasons = append(seasons, s)
			}
		}
	}
	return seasons
}

func tokenSet(title string) map[string]struct{} {
	tokens := tokenize(title)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func containsAny(tokens, markers map[string]struct{}) bool {
	for marker := range markers {
		if _, ok := tokens[marker]; ok {
			return true
		}
	}
	return false
}

var qualityTokens = []struct {
	label  string
	tokens map[string]struct{}
}{
	{label: "4K", tokens: ultraHDTokens},
	{label: "1080p", tokens: map[string]struct{}{"1080p": {}, "1080i": {}, "fhd": {}}},
	{label: "720p", tokens: map[string]struct{}{"720p": {}, "hd": {}}},
	{label: "480p", tokens: map[string]struct{}{"480p": {}, "576p": {}, "dvdrip": {}}},
}

// QualityLabel guesses the resolution tier from release title tokens.
func QualityLabel(title string) string {
	tokens := tokenSet(title)
	for _, tier := range qualityTokens {
		if containsAny(tokens, tier.tokens) {
			return tier.label
		}
	}
	return "SD"
}
