package bittorrentindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://apibay.org/q.php"
	defaultUserAgent = "stream-resolver/1.0"
	maxResults       = 100
)

// apibay answers an empty search with a single placeholder row.
const emptyResultHash = "0000000000000000000000000000000000000000"

type Config struct {
	Endpoint  string
	UserAgent string
	Trackers  []string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
	trackers  []string
}

type apiItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	InfoHash string `json:"info_hash"`
	Size     string `json:"size"`
	Seeders  string `json:"seeders"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
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
	return "piratebay"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "The Pirate Bay",
		Kind:    "index",
		Enabled: true,
	}
}

// Search queries the apibay JSON endpoint once. Sizes come back as byte
// counts and are passed through as decimal strings.
func (p *Provider) Search(ctx context.Context, term string, year int) ([]domain.CandidateRecord, error) {
	term = common.AppendYear(term, year)
	if term == "" {
		return nil, nil
	}
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("q", term)
	uri.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("piratebay HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}
	items, err := parseAPIItems(payload)
	if err != nil {
		return nil, err
	}

	records := make([]domain.CandidateRecord, 0, len(items))
	for _, item := range items {
		record, ok := p.toRecord(item)
		if !ok {
			continue
		}
		records = append(records, record)
		if len(records) >= maxResults {
			break
		}
	}
	return records, nil
}

func parseAPIItems(payload []byte) ([]apiItem, error) {
	var items []apiItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}
	var single map[string]string
	if err := json.Unmarshal(payload, &single); err == nil {
		return []apiItem{}, nil
	}
	return nil, fmt.Errorf("piratebay: unexpected payload")
}

func (p *Provider) toRecord(item apiItem) (domain.CandidateRecord, bool) {
	name := strings.TrimSpace(item.Name)
	hash := common.NormalizeInfoHash(item.InfoHash)
	if name == "" || len(hash) != 40 || hash == emptyResultHash {
		return domain.CandidateRecord{}, false
	}
	size := strings.TrimSpace(item.Size)
	if _, err := strconv.ParseInt(size, 10, 64); err != nil {
		size = ""
	}
	seeders, _ := strconv.Atoi(strings.TrimSpace(item.Seeders))

	return domain.CandidateRecord{
		Title:        name,
		MagnetURI:    common.BuildMagnet(hash, name, p.trackers),
		DeclaredSize: size,
		Seeders:      seeders,
		Source:       p.Name(),
	}, true
}
