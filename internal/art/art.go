// Package art fetches album art over the MPD binary commands and
// caches it as plain files, so the bus adapter and the notification
// relay can hand out file:// URIs.
package art

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/szclsya/mpdris2/internal/mpd"
)

// ErrNoArt means the daemon has neither embedded art nor a cover file
// for the track.
var ErrNoArt = errors.New("art: no album art available")

// Fetcher downloads art for one track at a time into dir, one file per
// song id. The previous track's file is removed when a new one lands.
type Fetcher struct {
	dir      string
	lastFile string
	log      zerolog.Logger
}

// NewFetcher creates the cache directory if needed. An empty dir picks
// a per-user default under the OS cache directory.
func NewFetcher(dir string, logger zerolog.Logger) (*Fetcher, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolving cache dir: %w", err)
		}
		dir = filepath.Join(base, "mpdris2", "art")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating art cache dir: %w", err)
	}
	return &Fetcher{dir: dir, log: logger.With().Str("component", "art").Logger()}, nil
}

// Fetch retrieves art for the track at uri, trying embedded pictures
// first and the directory cover second, and returns a file:// URI.
// The client must not be idling.
func (f *Fetcher) Fetch(ctx context.Context, client *mpd.Client, uri string, songID int) (string, error) {
	data, err := f.download(ctx, client, "readpicture", uri)
	if errors.Is(err, ErrNoArt) {
		data, err = f.download(ctx, client, "albumart", uri)
	}
	if err != nil {
		return "", err
	}

	path := filepath.Join(f.dir, strconv.Itoa(songID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing art file: %w", err)
	}
	if f.lastFile != "" && f.lastFile != path {
		_ = os.Remove(f.lastFile)
	}
	f.lastFile = path
	f.log.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("Album art updated")
	return "file://" + path, nil
}

// download reads the full picture in chunks; each reply carries the
// total size and one binary slice starting at the requested offset.
func (f *Fetcher) download(ctx context.Context, client *mpd.Client, verb, uri string) ([]byte, error) {
	var buf []byte
	for {
		reply, err := client.Execute(ctx, mpd.Cmd(verb, uri, strconv.Itoa(len(buf))))
		if err != nil {
			var ce *mpd.CommandError
			if errors.As(err, &ce) {
				// The daemon answers "No file exists" (or rejects the
				// verb outright on older versions) when there is no art.
				return nil, ErrNoArt
			}
			return nil, err
		}
		size, ok := reply.GetInt("size")
		if !ok || len(reply.Binary) == 0 {
			if len(buf) == 0 {
				return nil, ErrNoArt
			}
			return buf, nil
		}
		buf = append(buf, reply.Binary...)
		if len(buf) >= size {
			return buf, nil
		}
	}
}
