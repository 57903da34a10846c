package debrid

import (
	"net/http"
	"strings"
)

// Factory builds a provider per caller API key. All providers share one HTTP
// client so connection pooling spans requests.
type Factory struct {
	baseURL    string
	defaultKey string
	client     *http.Client
}

func NewFactory(client *http.Client, baseURL, defaultKey string) *Factory {
	if client == nil {
		client = &http.Client{}
	}
	return &Factory{
		baseURL:    strings.TrimSpace(baseURL),
		defaultKey: strings.TrimSpace(defaultKey),
		client:     client,
	}
}

// ForKey returns nil when neither the caller nor the server has a key.
func (f *Factory) ForKey(apiKey string) Provider {
	if f == nil {
		return nil
	}
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = f.defaultKey
	}
	if key == "" {
		return nil
	}
	return NewRealDebridClient(RealDebridConfig{APIKey: key, BaseURL: f.baseURL, Client: f.client})
}
