package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const defaultRealDebridBaseURL = "https://api.real-debrid.com/rest/1.0"

type RealDebridConfig struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// RealDebridClient talks to the Real-Debrid REST API.
type RealDebridClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ Provider = (*RealDebridClient)(nil)

func NewRealDebridClient(cfg RealDebridConfig) *RealDebridClient {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRealDebridBaseURL
	}
	return &RealDebridClient{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  client,
	}
}

func (c *RealDebridClient) Name() string {
	return "realdebrid"
}

type rdAddMagnetResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type rdTorrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Bytes    int64    `json:"bytes"`
	Status   string   `json:"status"`
	Links    []string `json:"links"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
}

type rdUnrestrictResponse struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Link     string `json:"link"`
	Download string `json:"download"`
}

type rdError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func (c *RealDebridClient) Submit(ctx context.Context, magnet string) (string, error) {
	magnet = strings.TrimSpace(magnet)
	if magnet == "" {
		return "", fmt.Errorf("%w: empty magnet", ErrRejectedMagnet)
	}
	var out rdAddMagnetResponse
	err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", url.Values{"magnet": {magnet}}, &out)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && rejectsMagnet(apiErr.status) {
			return "", fmt.Errorf("%w: %s", ErrRejectedMagnet, apiErr.message)
		}
		return "", fmt.Errorf("add magnet: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("add magnet: empty torrent id")
	}
	return out.ID, nil
}

// rejectsMagnet reports whether an addMagnet status is a verdict on the
// magnet itself. Auth failures stay ordinary errors.
func rejectsMagnet(status int) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false
	}
	return status >= 400 && status < 500
}

func (c *RealDebridClient) Status(ctx context.Context, torrentID string) (TorrentStatus, error) {
	var info rdTorrentInfo
	if err := c.do(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(torrentID), nil, &info); err != nil {
		return TorrentStatus{}, fmt.Errorf("torrent info: %w", err)
	}

	status := TorrentStatus{
		State: mapRealDebridState(info.Status),
		Links: info.Links,
		Files: make([]TorrentFile, 0, len(info.Files)),
	}
	for _, f := range info.Files {
		status.Files = append(status.Files, TorrentFile{
			ID:       f.ID,
			Path:     f.Path,
			Bytes:    f.Bytes,
			Selected: f.Selected == 1,
		})
	}
	return status, nil
}

func (c *RealDebridClient) SelectFiles(ctx context.Context, torrentID string, files string) error {
	if strings.TrimSpace(files) == "" {
		files = "all"
	}
	if err := c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(torrentID), url.Values{"files": {files}}, nil); err != nil {
		return fmt.Errorf("select files: %w", err)
	}
	return nil
}

func (c *RealDebridClient) Unlock(ctx context.Context, link string) (UnlockedLink, error) {
	var out rdUnrestrictResponse
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", url.Values{"link": {link}}, &out); err != nil {
		return UnlockedLink{}, fmt.Errorf("unrestrict link: %w", err)
	}
	if strings.TrimSpace(out.Download) == "" {
		return UnlockedLink{}, fmt.Errorf("unrestrict link: empty download url")
	}
	filename := out.Filename
	if filename == "" {
		filename = path.Base(out.Download)
	}
	return UnlockedLink{URL: out.Download, Filename: filename, SizeBytes: out.Filesize}, nil
}

type apiError struct {
	status  int
	code    int
	message string
}

func (e *apiError) Error() string {
	if e.code != 0 {
		return fmt.Sprintf("real-debrid HTTP %d (code %d): %s", e.status, e.code, e.message)
	}
	return fmt.Sprintf("real-debrid HTTP %d: %s", e.status, e.message)
}

func (c *RealDebridClient) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var rdErr rdError
		_ = json.Unmarshal(payload, &rdErr)
		message := strings.TrimSpace(rdErr.Error)
		if message == "" {
			message = strings.TrimSpace(string(payload))
		}
		return &apiError{status: resp.StatusCode, code: rdErr.ErrorCode, message: message}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapRealDebridState(raw string) TorrentState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "waiting_files_selection":
		return TorrentWaitingFiles
	case "magnet_conversion", "queued":
		return TorrentQueued
	case "downloading", "compressing", "uploading":
		return TorrentDownloading
	case "downloaded":
		return TorrentDownloaded
	default:
		return TorrentError
	}
}
