package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var ErrInvalidUserConfig = errors.New("invalid user config")

const maxDebridKeyLength = 128

// UserConfig is the per-caller configuration. It is decoded and validated
// once at the request boundary; the pipeline only ever sees this struct.
type UserConfig struct {
	LocalLanguageOnly bool   `json:"localLanguageOnly"`
	ExcludeUltraHD    bool   `json:"excludeUltraHD"`
	ExcludeCam        bool   `json:"excludeCam"`
	ShowUnresolved    bool   `json:"showUnresolved"`
	DebridAPIKey      string `json:"-"`
}

type userConfigWire struct {
	LocalLanguageOnly *bool  `json:"localLanguageOnly"`
	ExcludeUltraHD    bool   `json:"excludeUltraHD"`
	ExcludeCam        bool   `json:"excludeCam"`
	ShowUnresolved    bool   `json:"showUnresolved"`
	DebridAPIKey      string `json:"debridApiKey"`
}

func DefaultUserConfig() UserConfig {
	return UserConfig{LocalLanguageOnly: true}
}

// ParseUserConfig decodes the base64 JSON blob carried in the addon URL.
// An empty blob yields the defaults.
func ParseUserConfig(raw string) (UserConfig, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return DefaultUserConfig(), nil
	}

	payload, err := decodeBase64(value)
	if err != nil {
		return UserConfig{}, fmt.Errorf("%w: %v", ErrInvalidUserConfig, err)
	}

	var wire userConfigWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return UserConfig{}, fmt.Errorf("%w: %v", ErrInvalidUserConfig, err)
	}

	cfg := DefaultUserConfig()
	if wire.LocalLanguageOnly != nil {
		cfg.LocalLanguageOnly = *wire.LocalLanguageOnly
	}
	cfg.ExcludeUltraHD = wire.ExcludeUltraHD
	cfg.ExcludeCam = wire.ExcludeCam
	cfg.ShowUnresolved = wire.ShowUnresolved
	cfg.DebridAPIKey = strings.TrimSpace(wire.DebridAPIKey)

	if err := cfg.Validate(); err != nil {
		return UserConfig{}, err
	}
	return cfg, nil
}

func (c UserConfig) Validate() error {
	if len(c.DebridAPIKey) > maxDebridKeyLength {
		return fmt.Errorf("%w: debrid api key too long", ErrInvalidUserConfig)
	}
	for _, r := range c.DebridAPIKey {
		if r <= ' ' || r > '~' {
			return fmt.Errorf("%w: debrid api key contains invalid characters", ErrInvalidUserConfig)
		}
	}
	return nil
}

// Fingerprint identifies the behaviour-relevant part of the config for cache
// keys. The debrid key is hashed in because resolved links are per account.
func (c UserConfig) Fingerprint() string {
	var b strings.Builder
	for _, flag := range []bool{c.LocalLanguageOnly, c.ExcludeUltraHD, c.ExcludeCam, c.ShowUnresolved} {
		if flag {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	b.WriteByte('|')
	b.WriteString(c.DebridAPIKey)
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

func decodeBase64(value string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		payload, err := enc.DecodeString(value)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
