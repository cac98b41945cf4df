package art_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/szclsya/mpdris2/internal/art"
	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/mpdtest"
)

// chunked serves data in fixed-size binary chunks, the way the daemon
// answers readpicture/albumart with an offset argument.
func chunked(data []byte, chunkSize int) mpdtest.Handler {
	return func(args []string) string {
		offset := 0
		if len(args) >= 2 {
			offset, _ = strconv.Atoi(args[1])
		}
		if offset >= len(data) {
			return "size: " + strconv.Itoa(len(data)) + "\nOK\n"
		}
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		return "size: " + strconv.Itoa(len(data)) +
			"\nbinary: " + strconv.Itoa(len(chunk)) +
			"\n" + string(chunk) + "\nOK\n"
	}
}

func setup(t *testing.T) (*mpdtest.Server, *mpd.Client, *art.Fetcher) {
	t.Helper()
	srv, err := mpdtest.Start()
	if err != nil {
		t.Fatalf("mpdtest.Start: %v", err)
	}
	t.Cleanup(srv.Close)

	client, err := mpd.Connect(context.Background(), srv.Addr, zerolog.Nop())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	fetcher, err := art.NewFetcher(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return srv, client, fetcher
}

func TestFetchChunked(t *testing.T) {
	srv, client, fetcher := setup(t)
	data := []byte(strings.Repeat("x", 100) + "END")
	srv.Handle("readpicture", chunked(data, 32))

	url, err := fetcher.Fetch(context.Background(), client, "a.mp3", 7)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	path, ok := strings.CutPrefix(url, "file://")
	if !ok {
		t.Fatalf("Fetch returned %q, want file:// URL", url)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading art file: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("art file holds %d bytes, want %d", len(got), len(data))
	}
}

func TestFetchFallsBackToAlbumart(t *testing.T) {
	srv, client, fetcher := setup(t)
	srv.HandleReply("readpicture", mpdtest.Ack(50, "readpicture", "No file exists"))
	srv.Handle("albumart", chunked([]byte("cover"), 64))

	url, err := fetcher.Fetch(context.Background(), client, "a.mp3", 7)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("Fetch returned %q", url)
	}
}

func TestFetchNoArt(t *testing.T) {
	srv, client, fetcher := setup(t)
	srv.HandleReply("readpicture", mpdtest.Ack(50, "readpicture", "No file exists"))
	srv.HandleReply("albumart", mpdtest.Ack(50, "albumart", "No file exists"))

	_, err := fetcher.Fetch(context.Background(), client, "a.mp3", 7)
	if !errors.Is(err, art.ErrNoArt) {
		t.Errorf("Fetch error = %v, want ErrNoArt", err)
	}
}

func TestFetchReplacesPreviousFile(t *testing.T) {
	srv, client, fetcher := setup(t)
	srv.Handle("readpicture", chunked([]byte("first"), 64))

	url1, err := fetcher.Fetch(context.Background(), client, "a.mp3", 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := fetcher.Fetch(context.Background(), client, "b.mp3", 2); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	old := strings.TrimPrefix(url1, "file://")
	if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("previous art file still present: %v", err)
	}
}
