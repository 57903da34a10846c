package x1337

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

	"golang.org/x/sync/errgroup"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/providers/common"
)

const (
	defaultEndpoints  = "https://1337x.to,https://1337x.st,https://x1337x.ws"
	defaultUserAgent  = "stream-resolver/1.0"
	maxDetailFetches  = 15
	detailConcurrency = 4
)

var (
	rowPattern     = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	entryPattern   = regexp.MustCompile(`(?is)<a[^>]+href="(/torrent/[^"]+)"[^>]*>(.*?)</a>`)
	seedsPattern   = regexp.MustCompile(`(?is)<td[^>]+class="[^"]*\bseeds\b[^"]*"[^>]*>\s*([0-9]+)`)
	sizePattern    = regexp.MustCompile(`(?is)<td[^>]+class="[^"]*\bsize\b[^"]*"[^>]*>\s*([^<]+)`)
	magnetPattern  = regexp.MustCompile(`magnet:\?xt=urn:btih:[a-zA-Z0-9]{32,40}[^\s"'<>]*`)
	detailSizeText = regexp.MustCompile(`(?is)Total size\s*</[^>]*>\s*<[^>]*>\s*([^<]+)`)
)

type Config struct {
	// Endpoints is a comma separated mirror list tried in order.
	Endpoints string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoints []string
	userAgent string
}

type listEntry struct {
	Name    string
	Path    string
	Size    string
	Seeders int
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{
		client:    client,
		endpoints: parseEndpoints(cfg.Endpoints),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return "1337x"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "1337x",
		Kind:    "index",
		Enabled: true,
	}
}

// Search reads the listing from the first mirror that answers, then fetches
// detail pages for the magnets. A failed detail page only loses its row.
func (p *Provider) Search(ctx context.Context, term string, year int) ([]domain.CandidateRecord, error) {
	term = common.AppendYear(term, year)
	if term == "" {
		return nil, nil
	}

	var (
		entries []listEntry
		baseURL *url.URL
		err     error
	)
	for _, endpoint := range p.endpoints {
		entries, baseURL, err = p.fetchListing(ctx, endpoint, term)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if len(entries) > maxDetailFetches {
		entries = entries[:maxDetailFetches]
	}

	// Each goroutine writes only its own index.
	magnets := make([]string, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			magnet, size, fetchErr := p.fetchDetail(gctx, baseURL, entry.Path)
			if fetchErr != nil {
				return nil
			}
			magnets[i] = magnet
			if entries[i].Size == "" {
				entries[i].Size = size
			}
			return nil
		})
	}
	_ = g.Wait()

	records := make([]domain.CandidateRecord, 0, len(entries))
	for i, entry := range entries {
		if magnets[i] == "" {
			continue
		}
		records = append(records, domain.CandidateRecord{
			Title:        entry.Name,
			MagnetURI:    magnets[i],
			DeclaredSize: entry.Size,
			Seeders:      entry.Seeders,
			Source:       p.Name(),
		})
	}
	return records, nil
}

func (p *Provider) fetchListing(ctx context.Context, endpoint, term string) ([]listEntry, *url.URL, error) {
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	searchURL := baseURL.ResolveReference(&url.URL{Path: "/search/" + url.PathEscape(term) + "/1/"})
	payload, err := p.get(ctx, searchURL.String())
	if err != nil {
		return nil, nil, err
	}
	return parseListing(payload), searchURL, nil
}

func (p *Provider) fetchDetail(ctx context.Context, baseURL *url.URL, rawPath string) (string, string, error) {
	detailURL, err := url.Parse(strings.TrimSpace(rawPath))
	if err != nil {
		return "", "", err
	}
	payload, err := p.get(ctx, baseURL.ResolveReference(detailURL).String())
	if err != nil {
		return "", "", err
	}
	magnet := strings.TrimSpace(html.UnescapeString(magnetPattern.FindString(payload)))
	if common.InfoHashFromMagnet(magnet) == "" {
		return "", "", fmt.Errorf("1337x: no magnet on %s", rawPath)
	}
	size := ""
	if m := detailSizeText.FindStringSubmatch(payload); len(m) == 2 {
		size = common.CleanHTMLText(m[1])
	}
	return magnet, size, nil
}

func (p *Provider) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("1337x HTTP %d: %s", resp.StatusCode, compactSnippet(string(body), 200))
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func parseListing(payload string) []listEntry {
	rows := rowPattern.FindAllStringSubmatch(payload, -1)
	items := make([]listEntry, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		match := entryPattern.FindStringSubmatch(row[1])
		if len(match) < 3 {
			continue
		}
		path := strings.TrimSpace(match[1])
		name := common.CleanHTMLText(match[2])
		if path == "" || name == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		entry := listEntry{Name: name, Path: path}
		if m := sizePattern.FindStringSubmatch(row[1]); len(m) == 2 {
			entry.Size = common.CleanHTMLText(m[1])
		}
		if m := seedsPattern.FindStringSubmatch(row[1]); len(m) == 2 {
			entry.Seeders, _ = strconv.Atoi(m[1])
		}
		items = append(items, entry)
	}
	return items
}

func parseEndpoints(raw string) []string {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = defaultEndpoints
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		endpoint := strings.TrimRight(strings.TrimSpace(part), "/")
		if endpoint == "" {
			continue
		}
		if _, exists := seen[endpoint]; exists {
			continue
		}
		seen[endpoint] = struct{}{}
		items = append(items, endpoint)
	}
	return items
}

func compactSnippet(raw string, maxLen int) string {
	value := common.CleanHTMLText(raw)
	if value == "" {
		return "empty response body"
	}
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen-3] + "..."
}
