// Package debrid resolves ranked torrent candidates into direct links through
// a debrid unlocking service.
package debrid

import (
	"context"
	"errors"
)

var (
	// ErrRejectedMagnet is returned by Submit when the provider refuses the
	// magnet as invalid or duplicate.
	ErrRejectedMagnet = errors.New("magnet rejected by provider")
	ErrUnauthorized   = errors.New("debrid authentication failed")
	ErrNotConfigured  = errors.New("debrid provider not configured")
	ErrNotReady       = errors.New("torrent not downloaded")
)

// TorrentState is the provider-side state of a submitted torrent.
type TorrentState string

const (
	TorrentWaitingFiles TorrentState = "waiting_files_selection"
	TorrentQueued       TorrentState = "queued"
	TorrentDownloading  TorrentState = "downloading"
	TorrentDownloaded   TorrentState = "downloaded"
	TorrentError        TorrentState = "error"
)

type TorrentFile struct {
	ID       int
	Path     string
	Bytes    int64
	Selected bool
}

type TorrentStatus struct {
	State TorrentState
	Files []TorrentFile
	Links []string
}

type UnlockedLink struct {
	URL       string
	Filename  string
	SizeBytes int64
}

// Provider is the black-box capability the resolver needs from a debrid
// service. Every call is attempted once.
type Provider interface {
	Name() string
	Submit(ctx context.Context, magnet string) (string, error)
	Status(ctx context.Context, torrentID string) (TorrentStatus, error)
	SelectFiles(ctx context.Context, torrentID string, files string) error
	Unlock(ctx context.Context, link string) (UnlockedLink, error)
}
