package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/szclsya/mpdris2/internal/art"
	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/state"
)

// stubArt answers Fetch with a canned result.
type stubArt struct {
	url string
	err error
}

func (s *stubArt) Fetch(context.Context, *mpd.Client, string, int) (string, error) {
	return s.url, s.err
}

// playingModel returns a model with one playing track so updateArt has
// something to fetch for.
func playingModel(t *testing.T) *state.Model {
	t.Helper()
	m := state.NewModel()
	if _, err := m.ApplyStatus(mpd.Reply{Pairs: []mpd.Pair{
		{Key: "state", Value: "play"},
		{Key: "song", Value: "0"},
		{Key: "songid", Value: "1"},
		{Key: "playlist", Value: "1"},
		{Key: "playlistlength", Value: "1"},
	}}); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if _, err := m.ApplyQueue(mpd.Reply{Pairs: []mpd.Pair{
		{Key: "file", Value: "a.mp3"},
		{Key: "Pos", Value: "0"},
		{Key: "Id", Value: "1"},
	}}, 1); err != nil {
		t.Fatalf("ApplyQueue: %v", err)
	}
	return m
}

func TestUpdateArtOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		fetch   *stubArt
		wantURL string
		wantLog string // substring of the emitted log line, "" for silence
	}{
		{
			name:    "art found",
			fetch:   &stubArt{url: "file:///tmp/cover"},
			wantURL: "file:///tmp/cover",
		},
		{
			name:    "no art stays quiet",
			fetch:   &stubArt{err: art.ErrNoArt},
			wantLog: `"level":"debug"`,
		},
		{
			name:    "cache failure is warned about",
			fetch:   &stubArt{err: errors.New("writing art file: read-only file system")},
			wantLog: `"level":"warn"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			b := &Bridge{
				model:    playingModel(t),
				artCache: tt.fetch,
				log:      zerolog.New(&buf),
			}
			if err := b.updateArt(context.Background(), nil); err != nil {
				t.Fatalf("updateArt: %v", err)
			}
			if got := b.model.Snapshot().ArtURL; got != tt.wantURL {
				t.Errorf("ArtURL = %q, want %q", got, tt.wantURL)
			}
			if tt.wantLog == "" {
				if buf.Len() != 0 {
					t.Errorf("unexpected log output %q", buf.String())
				}
			} else if !strings.Contains(buf.String(), tt.wantLog) {
				t.Errorf("log = %q, want it to contain %q", buf.String(), tt.wantLog)
			}
		})
	}
}

func TestUpdateArtPropagatesConnError(t *testing.T) {
	b := &Bridge{
		model:    playingModel(t),
		artCache: &stubArt{err: &mpd.ConnError{Kind: mpd.ConnIO}},
		log:      zerolog.Nop(),
	}
	if err := b.updateArt(context.Background(), nil); !mpd.IsConnError(err) {
		t.Errorf("updateArt error = %v, want a connection error", err)
	}
}
