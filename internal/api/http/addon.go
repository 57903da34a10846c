package apihttp

import (
	"strings"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/search"
)

const addonName = "Resolver"

// Manifest is the addon descriptor served on /manifest.json.
type Manifest struct {
	ID            string         `json:"id"`
	Version       string         `json:"version"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Resources     []string       `json:"resources"`
	Types         []string       `json:"types"`
	IDPrefixes    []string       `json:"idPrefixes"`
	Catalogs      []any          `json:"catalogs"`
	BehaviorHints map[string]any `json:"behaviorHints,omitempty"`
}

func DefaultManifest() Manifest {
	return Manifest{
		ID:          "org.torrentstream.resolver",
		Version:     "1.0.0",
		Name:        addonName,
		Description: "Italian releases from public indexes, unlocked through a debrid account",
		Resources:   []string{"stream"},
		Types:       []string{string(domain.MediaTypeMovie), string(domain.MediaTypeSeries)},
		IDPrefixes:  []string{"tt"},
		Catalogs:    []any{},
		BehaviorHints: map[string]any{
			"configurable": true,
		},
	}
}

type streamItem struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	URL           string         `json:"url,omitempty"`
	InfoHash      string         `json:"infoHash,omitempty"`
	BehaviorHints map[string]any `json:"behaviorHints,omitempty"`
}

type streamsPayload struct {
	Streams     []streamItem `json:"streams"`
	CacheMaxAge int          `json:"cacheMaxAge"`
	Status      string       `json:"status"`
	Message     string       `json:"message,omitempty"`
}

func renderStreams(response domain.StreamResponse) streamsPayload {
	payload := streamsPayload{
		Streams:     make([]streamItem, 0, len(response.Streams)),
		CacheMaxAge: response.CacheHintSeconds,
		Status:      string(response.Status),
		Message:     response.Message,
	}
	for _, record := range response.Streams {
		payload.Streams = append(payload.Streams, renderStream(record))
	}
	return payload
}

func renderStream(record domain.StreamRecord) streamItem {
	quality := search.QualityLabel(record.DisplayTitle)
	item := streamItem{
		Name:  addonName + "\n" + quality,
		Title: streamTitle(record),
		BehaviorHints: map[string]any{
			"bingeGroup": "resolver-" + strings.ToLower(quality),
		},
	}
	if record.IsPending {
		item.Name = addonName + " ⏳\n" + quality
		item.BehaviorHints["notWebReady"] = true
		if record.InfoHash != "" {
			item.InfoHash = strings.ToLower(record.InfoHash)
		} else {
			item.URL = record.URL
		}
		return item
	}
	item.URL = record.URL
	if record.Filename != "" {
		item.BehaviorHints["filename"] = record.Filename
	}
	if record.SizeBytes > 0 {
		item.BehaviorHints["videoSize"] = record.SizeBytes
	}
	return item
}

func streamTitle(record domain.StreamRecord) string {
	var details []string
	if size := search.FormatSize(record.SizeBytes); size != "" {
		details = append(details, "💾 "+size)
	}
	if record.Source != "" {
		details = append(details, "⚙️ "+record.Source)
	}
	if len(details) == 0 {
		return record.DisplayTitle
	}
	return record.DisplayTitle + "\n" + strings.Join(details, " ")
}
