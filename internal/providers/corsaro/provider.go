package corsaro

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://ilcorsaronero.link"
	defaultUserAgent = "stream-resolver/1.0"
	maxTopicFetches  = 12
)

var (
	rowPattern    = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	topicPattern  = regexp.MustCompile(`(?is)<a[^>]+href="(/torrent/[0-9]+[^"]*)"[^>]*>(.*?)</a>`)
	sizeCell      = regexp.MustCompile(`(?i)<td[^>]*>\s*([0-9][0-9.,]*\s*[kmgt]i?b)\s*</td>`)
	numberCell    = regexp.MustCompile(`(?i)<td[^>]*>\s*([0-9]+)\s*</td>`)
	magnetPattern = regexp.MustCompile(`magnet:\?xt=urn:btih:[a-zA-Z0-9]{32,40}[^\s"'<>]*`)
	hashPattern   = regexp.MustCompile(`(?i)\b([0-9a-f]{40})\b`)
)

type Config struct {
	Endpoint  string
	UserAgent string
	Trackers  []string
	Client    *http.Client
}

// Provider scrapes ilCorSaRoNeRo. Everything it lists is Italian, so it is
// registered as a local-only source.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
	trackers  []string
}

type topicEntry struct {
	Path    string
	Name    string
	Size    string
	Seeders int
}

func NewProvider(cfg Config) *Provider {
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
	trackers := cfg.Trackers
	if len(trackers) == 0 {
		trackers = common.DefaultTrackers
	}
	return &Provider{
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
		trackers:  trackers,
	}
}

func (p *Provider) Name() string {
	return "corsaro"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:      p.Name(),
		Label:     "ilCorSaRoNeRo",
		Kind:      "tracker",
		Enabled:   true,
		LocalOnly: true,
	}
}

func (p *Provider) Search(ctx context.Context, term string, year int) ([]domain.CandidateRecord, error) {
	term = common.AppendYear(term, year)
	if term == "" {
		return nil, nil
	}
	baseURL, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	searchURL := baseURL.ResolveReference(&url.URL{Path: "/search"})
	query := searchURL.Query()
	query.Set("q", term)
	searchURL.RawQuery = query.Encode()

	payload, err := p.get(ctx, searchURL.String())
	if err != nil {
		return nil, err
	}
	topics := parseTopics(payload)
	if len(topics) > maxTopicFetches {
		topics = topics[:maxTopicFetches]
	}

	records := make([]domain.CandidateRecord, 0, len(topics))
	for _, topic := range topics {
		if ctx.Err() != nil {
			break
		}
		magnet, err := p.fetchTopicMagnet(ctx, baseURL, topic)
		if err != nil || magnet == "" {
			continue
		}
		records = append(records, domain.CandidateRecord{
			Title:        topic.Name,
			MagnetURI:    magnet,
			DeclaredSize: topic.Size,
			Seeders:      topic.Seeders,
			Source:       p.Name(),
		})
	}
	return records, nil
}

func parseTopics(payload string) []topicEntry {
	rows := rowPattern.FindAllStringSubmatch(payload, -1)
	items := make([]topicEntry, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		entry := parseTopicRow(row[1])
		if entry.Path == "" || entry.Name == "" {
			continue
		}
		if _, exists := seen[entry.Path]; exists {
			continue
		}
		seen[entry.Path] = struct{}{}
		items = append(items, entry)
	}
	return items
}

func parseTopicRow(row string) topicEntry {
	var entry topicEntry
	if m := topicPattern.FindStringSubmatch(row); len(m) == 3 {
		entry.Path = strings.TrimSpace(html.UnescapeString(m[1]))
		entry.Name = common.CleanHTMLText(m[2])
	}
	if m := sizeCell.FindStringSubmatch(row); len(m) == 2 {
		entry.Size = strings.TrimSpace(m[1])
	}
	// The first bare number column is seeders, the second leechers.
	if m := numberCell.FindStringSubmatch(row); len(m) == 2 {
		entry.Seeders, _ = strconv.Atoi(m[1])
	}
	return entry
}

func (p *Provider) fetchTopicMagnet(ctx context.Context, baseURL *url.URL, topic topicEntry) (string, error) {
	ref, err := url.Parse(topic.Path)
	if err != nil {
		return "", err
	}
	payload, err := p.get(ctx, baseURL.ResolveReference(ref).String())
	if err != nil {
		return "", err
	}
	if magnet := strings.TrimSpace(html.UnescapeString(magnetPattern.FindString(payload))); magnet != "" {
		if hash := common.InfoHashFromMagnet(magnet); hash != "" {
			if !strings.Contains(magnet, "&dn=") {
				return common.BuildMagnet(hash, topic.Name, p.trackers), nil
			}
			return magnet, nil
		}
	}
	if m := hashPattern.FindStringSubmatch(payload); len(m) == 2 {
		return common.BuildMagnet(m[1], topic.Name, p.trackers), nil
	}
	return "", nil
}

func (p *Provider) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9,en;q=0.6")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("corsaro HTTP %d: %s", resp.StatusCode, strings.TrimSpace(common.CleanHTMLText(string(body))))
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", err
	}
	return decodeHTML(payload), nil
}

// decodeHTML passes UTF-8 through and reads anything else as Latin-1, which
// is what older pages of the site are served in.
func decodeHTML(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}
