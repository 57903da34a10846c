package torrentio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/providers/common"
	"torrentstream/resolverservice/internal/search"
)

const (
	defaultEndpoint  = "https://torrentio.strem.fun"
	defaultUserAgent = "stream-resolver/1.0"
	italianFlag      = "\U0001F1EE\U0001F1F9"
)

var (
	sizePattern    = regexp.MustCompile(`💾\s*([0-9][0-9.,]*\s*[KMGT]i?B)`)
	seedersPattern = regexp.MustCompile(`👤\s*([0-9]+)`)
	localPattern   = regexp.MustCompile(`(?i)\b(ita|italian|italiano)\b`)
)

type Config struct {
	Endpoint string
	// Options is the optional path segment between the host and /stream,
	// e.g. "sort=qualitysize|qualityfilter=cam".
	Options   string
	UserAgent string
	Client    *http.Client
}

// Aggregator asks a Torrentio-compatible addon for streams by IMDb id. It is
// only consulted when the regular adapters come back nearly empty.
type Aggregator struct {
	client    *http.Client
	endpoint  string
	options   string
	userAgent string
}

var _ search.Aggregator = (*Aggregator)(nil)

type streamResponse struct {
	Streams []struct {
		Name          string `json:"name"`
		Title         string `json:"title"`
		InfoHash      string `json:"infoHash"`
		BehaviorHints struct {
			Filename string `json:"filename"`
		} `json:"behaviorHints"`
		Sources []string `json:"sources"`
	} `json:"streams"`
}

func New(cfg Config) *Aggregator {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Aggregator{
		client:    client,
		endpoint:  endpoint,
		options:   strings.Trim(strings.TrimSpace(cfg.Options), "/"),
		userAgent: userAgent,
	}
}

func (a *Aggregator) Name() string {
	return "torrentio"
}

func (a *Aggregator) Search(ctx context.Context, request search.AggregatorRequest) ([]domain.CandidateRecord, error) {
	id := strings.TrimSpace(request.MediaID)
	if id == "" {
		return nil, fmt.Errorf("torrentio: empty media id")
	}
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", a.endpoint, request.MediaType, url.PathEscape(id))
	if a.options != "" {
		endpoint = fmt.Sprintf("%s/%s/stream/%s/%s.json", a.endpoint, a.options, request.MediaType, url.PathEscape(id))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("torrentio %s returned %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload streamResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4*1024*1024)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode torrentio response: %w", err)
	}

	records := make([]domain.CandidateRecord, 0, len(payload.Streams))
	for _, stream := range payload.Streams {
		hash := common.NormalizeInfoHash(stream.InfoHash)
		if len(hash) != 40 {
			continue
		}
		title := releaseTitle(stream.Title, stream.BehaviorHints.Filename)
		if title == "" {
			continue
		}
		records = append(records, domain.CandidateRecord{
			Title:        title,
			MagnetURI:    common.BuildMagnet(hash, title, trackersFrom(stream.Sources)),
			DeclaredSize: firstGroup(sizePattern, stream.Title),
			Seeders:      atoi(firstGroup(seedersPattern, stream.Title)),
			Source:       a.Name(),
		})
	}
	return records, nil
}

// releaseTitle takes the release name from the first line of the stream
// title. Language is carried as flag emoji on later lines, so an Italian
// flag is folded into the name as an ITA marker.
func releaseTitle(raw, filename string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	title := strings.TrimSpace(lines[0])
	if title == "" {
		title = strings.TrimSpace(filename)
	}
	if title == "" {
		return ""
	}
	if strings.Contains(raw, italianFlag) && !localPattern.MatchString(title) {
		title += " [ITA]"
	}
	return title
}

func trackersFrom(sources []string) []string {
	var trackers []string
	for _, source := range sources {
		if tracker, ok := strings.CutPrefix(strings.TrimSpace(source), "tracker:"); ok && tracker != "" {
			trackers = append(trackers, tracker)
		}
	}
	if len(trackers) == 0 {
		return common.DefaultTrackers
	}
	return trackers
}

func firstGroup(pattern *regexp.Regexp, raw string) string {
	if m := pattern.FindStringSubmatch(raw); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func atoi(raw string) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
