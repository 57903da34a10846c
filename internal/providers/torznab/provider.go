package torznab

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/providers/common"
)

const (
	defaultUserAgent      = "stream-resolver/1.0"
	torrentFetchTimeout   = 4 * time.Second
	maxConcurrentTorrents = 4
)

// Movie and TV categories from the Torznab category table.
const (
	movieCategories  = "2000"
	seriesCategories = "5000"
)

type Config struct {
	Name      string
	Label     string
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
	Trackers  []string
}

// Provider talks to one Torznab endpoint, usually a Jackett or Prowlarr
// aggregate feed. It is disabled until an endpoint and key are configured.
type Provider struct {
	name      string
	label     string
	endpoint  string
	apiKey    string
	userAgent string
	client    *http.Client
	trackers  []string
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = "torznab"
	}
	label := strings.TrimSpace(cfg.Label)
	if label == "" {
		label = "Torznab"
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
		name:      name,
		label:     label,
		endpoint:  strings.TrimSpace(cfg.Endpoint),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
		client:    client,
		trackers:  trackers,
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.name,
		Label:   p.label,
		Kind:    "indexer",
		Enabled: p.isConfigured(),
	}
}

func (p *Provider) isConfigured() bool {
	if p.endpoint == "" {
		return false
	}
	return p.apiKey != "" || endpointHasAPIKey(p.endpoint)
}

func (p *Provider) Search(ctx context.Context, term string, year int) ([]domain.CandidateRecord, error) {
	if !p.isConfigured() {
		return nil, fmt.Errorf("%s: not configured", p.name)
	}
	term = common.AppendYear(term, year)
	if term == "" {
		return nil, nil
	}

	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("t", "search")
	query.Set("q", term)
	query.Set("cat", movieCategories+","+seriesCategories)
	// Jackett only includes infohash, seeders and size attrs in extended mode.
	if query.Get("extended") == "" {
		query.Set("extended", "1")
	}
	if query.Get("apikey") == "" && p.apiKey != "" {
		query.Set("apikey", p.apiKey)
	}
	uri.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/rss+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s HTTP %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}
	items, err := parseTorznabResponse(payload)
	if err != nil {
		return nil, err
	}

	hashes := p.prefetchTorrentHashes(ctx, items)
	records := make([]domain.CandidateRecord, 0, len(items))
	for _, item := range items {
		if record, ok := p.itemToRecord(item, hashes); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (p *Provider) itemToRecord(item torznabItem, torrentHashes map[string]string) (domain.CandidateRecord, bool) {
	name := strings.TrimSpace(item.Title)
	if name == "" {
		return domain.CandidateRecord{}, false
	}
	attrs := item.attrMap()

	magnet := firstMagnet(item.Guid, item.Link, item.Enclosure.URL)
	hash := common.NormalizeInfoHash(attrs["infohash"])
	if hash == "" && magnet != "" {
		hash = common.InfoHashFromMagnet(magnet)
	}
	if hash == "" {
		hash = torrentHashes[item.downloadURL()]
	}
	if magnet == "" && hash != "" {
		magnet = common.BuildMagnet(hash, name, p.trackers)
	}
	if magnet == "" {
		return domain.CandidateRecord{}, false
	}

	size := attrs["size"]
	if _, err := strconv.ParseInt(size, 10, 64); err != nil {
		size = ""
	}
	if size == "" && item.Enclosure.Length > 0 {
		size = strconv.FormatInt(item.Enclosure.Length, 10)
	}
	seeders, _ := strconv.Atoi(attrs["seeders"])

	return domain.CandidateRecord{
		Title:        name,
		MagnetURI:    magnet,
		DeclaredSize: size,
		Seeders:      seeders,
		Source:       p.name,
	}, true
}

// prefetchTorrentHashes downloads .torrent enclosures for items that carry
// neither a magnet nor an infohash attr. Returns download URL -> infohash.
func (p *Provider) prefetchTorrentHashes(ctx context.Context, items []torznabItem) map[string]string {
	var pending []string
	seen := make(map[string]struct{})
	for _, item := range items {
		if firstMagnet(item.Guid, item.Link, item.Enclosure.URL) != "" || item.attrMap()["infohash"] != "" {
			continue
		}
		link := item.downloadURL()
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		pending = append(pending, link)
	}
	if len(pending) == 0 {
		return nil
	}

	hashes := make([]string, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTorrents)
	for i, link := range pending {
		i, link := i, link
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, torrentFetchTimeout)
			defer cancel()
			if hash, err := p.fetchTorrentHash(fetchCtx, link); err == nil {
				hashes[i] = hash
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(pending))
	for i, link := range pending {
		if hashes[i] != "" {
			out[link] = hashes[i]
		}
	}
	return out
}

func (p *Provider) fetchTorrentHash(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/x-bittorrent,application/octet-stream,*/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("torrent download HTTP %d", resp.StatusCode)
	}
	return InfoHashFromTorrent(io.LimitReader(resp.Body, 2*1024*1024))
}

type torznabResponse struct {
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title     string `xml:"title"`
	Guid      string `xml:"guid"`
	Link      string `xml:"link"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length int64  `xml:"length,attr"`
	} `xml:"enclosure"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}

// attrMap keeps the first value per lower-cased attr name.
func (i torznabItem) attrMap() map[string]string {
	attrs := make(map[string]string, len(i.Attrs))
	for _, attr := range i.Attrs {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; !exists {
			attrs[key] = strings.TrimSpace(attr.Value)
		}
	}
	return attrs
}

func (i torznabItem) downloadURL() string {
	if link := strings.TrimSpace(i.Enclosure.URL); link != "" {
		return link
	}
	return strings.TrimSpace(i.Link)
}

func parseTorznabResponse(payload []byte) ([]torznabItem, error) {
	var rss torznabResponse
	if err := xml.Unmarshal(payload, &rss); err != nil {
		return nil, fmt.Errorf("invalid torznab XML: %w", err)
	}
	return rss.Channel.Items, nil
}

func firstMagnet(candidates ...string) string {
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		if strings.HasPrefix(strings.ToLower(value), "magnet:?") {
			return value
		}
	}
	return ""
}

func endpointHasAPIKey(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.TrimSpace(parsed.Query().Get("apikey")) != ""
}
