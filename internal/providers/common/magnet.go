package common

import (
	"encoding/base32"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// DefaultTrackers are appended to magnets built from a bare info-hash.
var DefaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
}

var (
	hexHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)
	magnetBTIH     = regexp.MustCompile(`(?i)urn:btih:([0-9a-z]{32,40})`)
)

// NormalizeInfoHash returns the lower-case 40-hex form of a v1 info-hash.
// Base32 hashes (32 chars) are converted; anything else yields "".
func NormalizeInfoHash(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "urn:btih:")
	switch len(value) {
	case 40:
		if hexHashPattern.MatchString(value) {
			return value
		}
	case 32:
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(value))
		if err == nil && len(decoded) == 20 {
			return hex.EncodeToString(decoded)
		}
	}
	return ""
}

// InfoHashFromMagnet returns the normalized hash of the first btih topic in
// a magnet URI, or "" when none is present.
func InfoHashFromMagnet(magnet string) string {
	match := magnetBTIH.FindStringSubmatch(magnet)
	if match == nil {
		return ""
	}
	return NormalizeInfoHash(match[1])
}

// BuildMagnet renders a magnet for a hash, with an escaped display name and
// the given trackers. Invalid hashes yield "".
func BuildMagnet(infoHash, name string, trackers []string) string {
	hash := NormalizeInfoHash(infoHash)
	if hash == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(hash)
	if name = strings.TrimSpace(name); name != "" {
		builder.WriteString("&dn=")
		builder.WriteString(url.QueryEscape(name))
	}
	for _, tracker := range trackers {
		if tracker = strings.TrimSpace(tracker); tracker != "" {
			builder.WriteString("&tr=")
			builder.WriteString(url.QueryEscape(tracker))
		}
	}
	return builder.String()
}
