package torznab

import (
	"fmt"
	"io"

	"github.com/anacrolix/torrent/metainfo"
)

// InfoHashFromTorrent returns the lower-case hex v1 infohash of a .torrent
// file.
func InfoHashFromTorrent(r io.Reader) (string, error) {
	mi, err := metainfo.Load(r)
	if err != nil {
		return "", fmt.Errorf("decode torrent: %w", err)
	}
	if len(mi.InfoBytes) == 0 {
		return "", fmt.Errorf("decode torrent: missing info dictionary")
	}
	return mi.HashInfoBytes().HexString(), nil
}
