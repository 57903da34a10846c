package domain

import "time"

type StreamStatus string

const (
	StreamStatusOK        StreamStatus = "ok"
	StreamStatusNoResults StreamStatus = "no_results"
	StreamStatusNotFound  StreamStatus = "not_found"
	StreamStatusPartial   StreamStatus = "partial"
)

// CandidateRecord is one raw hit returned by a source adapter for a single
// search term. DeclaredSize is kept as the site reported it ("4.12 GB" or a
// plain byte count) and only parsed by the ranker.
type CandidateRecord struct {
	Title        string `json:"title"`
	MagnetURI    string `json:"magnetUri"`
	DeclaredSize string `json:"declaredSize,omitempty"`
	Source       string `json:"source,omitempty"`
	Seeders      int    `json:"seeders,omitempty"`
}

type StreamRecord struct {
	DisplayTitle string `json:"displayTitle"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	URL          string `json:"url"`
	IsPending    bool   `json:"isPending"`
	Source       string `json:"source,omitempty"`
	InfoHash     string `json:"infoHash,omitempty"`
	Filename     string `json:"filename,omitempty"`
}

type StreamResponse struct {
	Streams          []StreamRecord `json:"streams"`
	CacheHintSeconds int            `json:"cacheHintSeconds"`
	Status           StreamStatus   `json:"status"`
	Message          string         `json:"message,omitempty"`
}

type ProviderInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Kind      string `json:"kind"`
	Enabled   bool   `json:"enabled"`
	LocalOnly bool   `json:"localOnly,omitempty"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	LocalOnly           bool       `json:"localOnly,omitempty"`
	LastOutcome         string     `json:"lastOutcome,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastTerm            string     `json:"lastTerm,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
	EmptyCount          int64      `json:"emptyCount,omitempty"`
	LastRecords         int        `json:"lastRecords,omitempty"`
}

// Clone returns a deep copy so cached payloads never share slices with callers.
func (r StreamResponse) Clone() StreamResponse {
	out := r
	out.Streams = append([]StreamRecord(nil), r.Streams...)
	if out.Streams == nil {
		out.Streams = []StreamRecord{}
	}
	return out
}
