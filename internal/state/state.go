// Package state holds the in-memory mirror of the daemon's playback
// and queue state. The model is single-writer (the change-detection
// loop folds replies into it) and multi-reader (bus handlers answer
// property reads from snapshots); it never speculates - every value
// comes from a reply actually received from the daemon.
package state

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/szclsya/mpdris2/internal/mpd"
)

// PlaybackState is the daemon's play/pause/stop tri-state.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

// String renders the MPRIS PlaybackStatus spelling.
func (s PlaybackState) String() string {
	switch s {
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// LoopStatus is the MPRIS view of MPD's repeat/single pair.
type LoopStatus string

const (
	LoopNone     LoopStatus = "None"
	LoopTrack    LoopStatus = "Track"
	LoopPlaylist LoopStatus = "Playlist"
)

// VolumeUnknown is reported when the daemon has no mixer.
const VolumeUnknown = -1

// seekThreshold separates a deliberate seek from ordinary playback
// progress between two status folds.
const seekThreshold = 2 * time.Second

// Status is the snapshot of the daemon's status reply.
type Status struct {
	State    PlaybackState
	Elapsed  time.Duration
	Duration time.Duration
	Volume   int // 0-100, VolumeUnknown without a mixer

	Repeat  bool
	Random  bool
	Single  bool
	Consume bool

	Song       int // queue index of the current song, -1 when none
	SongID     int // stable id of the current song, -1 when none
	NextSongID int

	QueueVersion int64 // daemon-assigned, monotonic
	QueueLength  int
}

// Loop folds the repeat/single flags into the MPRIS loop mode.
func (s Status) Loop() LoopStatus {
	switch {
	case s.Repeat && s.Single:
		return LoopTrack
	case s.Repeat:
		return LoopPlaylist
	default:
		return LoopNone
	}
}

// Track is one queue entry. Identity is the daemon-assigned ID, which
// survives reordering; Pos is only stable until the queue changes.
type Track struct {
	Pos int
	ID  int

	Title        string
	Artists      []string
	AlbumArtists []string
	Album        string
	Genre        string
	URI          string
	Duration     time.Duration
	TrackNumber  int
	Disc         int
}

// DisplayTitle returns the title, falling back to the URI's file name
// for untagged tracks.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	if idx := strings.LastIndexByte(t.URI, '/'); idx >= 0 {
		return t.URI[idx+1:]
	}
	return t.URI
}

// Diff describes what changed between two folds. It is consumed
// immediately by the bus adapter to pick the signals to emit.
type Diff struct {
	Playback bool // play/pause/stop transition
	Position bool // a seek, not ordinary progress
	Volume   bool
	Options  bool // repeat/random/single/consume
	Track    bool // current track identity changed
	Queue    bool // queue contents changed
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool { return d == Diff{} }

// Merge folds another diff into this one.
func (d Diff) Merge(o Diff) Diff {
	return Diff{
		Playback: d.Playback || o.Playback,
		Position: d.Position || o.Position,
		Volume:   d.Volume || o.Volume,
		Options:  d.Options || o.Options,
		Track:    d.Track || o.Track,
		Queue:    d.Queue || o.Queue,
	}
}

// MissingFieldError reports a status reply without a field that must
// always be present.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("state: status reply missing field %q", e.Field)
}

// ErrStaleQueue means a queue listing did not belong to the version
// counter the latest status advertised; the caller must re-query.
var ErrStaleQueue = errors.New("state: stale queue listing")

// Model is the authoritative in-memory snapshot. One writer (the
// change-detection loop) mutates it through the Apply methods;
// everyone else reads copies via Snapshot.
type Model struct {
	mu           sync.RWMutex
	status       Status
	queue        []Track
	queueVersion int64 // version counter the queue was built at
	artURL       string
	available    bool
	lastFold     time.Time

	now func() time.Time // swapped out in tests
}

// NewModel returns an empty model: stopped, no track, no queue.
func NewModel() *Model {
	return &Model{
		status: Status{Volume: VolumeUnknown, Song: -1, SongID: -1, NextSongID: -1},
		now:    time.Now,
	}
}

// ApplyStatus folds a status reply and reports what changed. The
// playback state field must be present; all other missing fields fall
// back to the prior value, except the song selection, whose absence
// means "no current song".
func (m *Model) ApplyStatus(r mpd.Reply) (Diff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stateStr, ok := r.Get("state")
	if !ok {
		return Diff{}, &MissingFieldError{Field: "state"}
	}
	old := m.status
	st := old

	switch stateStr {
	case "play":
		st.State = Playing
	case "pause":
		st.State = Paused
	case "stop":
		st.State = Stopped
	default:
		return Diff{}, fmt.Errorf("state: unknown playback state %q", stateStr)
	}

	if v, ok := r.GetSeconds("elapsed"); ok {
		st.Elapsed = v
	} else if st.State == Stopped {
		st.Elapsed = 0
	}
	if v, ok := r.GetSeconds("duration"); ok {
		st.Duration = v
	} else if st.State == Stopped {
		st.Duration = 0
	}
	if v, ok := r.GetInt("volume"); ok {
		st.Volume = v
	}
	if v, ok := r.GetBool("repeat"); ok {
		st.Repeat = v
	}
	if v, ok := r.GetBool("random"); ok {
		st.Random = v
	}
	if v, ok := r.GetBool("single"); ok {
		st.Single = v
	}
	if v, ok := r.GetBool("consume"); ok {
		st.Consume = v
	}

	// Absence of the song fields is a valid state (empty queue, or
	// stopped with no selection), not something to paper over.
	st.Song = intOr(r, "song", -1)
	st.SongID = intOr(r, "songid", -1)
	st.NextSongID = intOr(r, "nextsongid", -1)

	if v, ok := r.GetInt("playlist"); ok {
		st.QueueVersion = int64(v)
	}
	if v, ok := r.GetInt("playlistlength"); ok {
		st.QueueLength = v
	}

	now := m.now()
	diff := Diff{
		Playback: st.State != old.State,
		Volume:   st.Volume != old.Volume,
		Options: st.Repeat != old.Repeat || st.Random != old.Random ||
			st.Single != old.Single || st.Consume != old.Consume,
		Track: st.SongID != old.SongID,
	}

	// A seek shows up as elapsed time far from where playback should
	// have progressed to on its own.
	if !diff.Track && st.State != Stopped && !m.lastFold.IsZero() {
		expected := old.Elapsed
		if old.State == Playing {
			expected += now.Sub(m.lastFold)
		}
		if delta := st.Elapsed - expected; delta > seekThreshold || delta < -seekThreshold {
			diff.Position = true
		}
	}

	m.status = st
	m.lastFold = now
	return diff, nil
}

// ApplyQueue replaces the queue with the tracks from a listing reply
// taken at the given version counter (the one the just-applied status
// advertised). Replacing wholesale avoids reorder-patching bugs. The
// counter must move forward: an older counter, or the same counter
// with different contents, is rejected with ErrStaleQueue and the
// caller re-queries.
func (m *Model) ApplyQueue(r mpd.Reply, version int64) (Diff, error) {
	tracks := parseTracks(r)

	m.mu.Lock()
	defer m.mu.Unlock()

	same := tracksEqual(m.queue, tracks)
	if version < m.queueVersion || (version == m.queueVersion && !same) {
		return Diff{}, ErrStaleQueue
	}

	m.queue = tracks
	m.queueVersion = version
	return Diff{Queue: !same}, nil
}

// QueueVersion returns the counter the stored queue was built at. A
// mismatch against the latest status counter means the queue must be
// refetched before index-based commands can be trusted.
func (m *Model) QueueVersion() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queueVersion
}

// SetArtURL records the album art location for the current track.
func (m *Model) SetArtURL(url string) {
	m.mu.Lock()
	m.artURL = url
	m.mu.Unlock()
}

// SetAvailable flips the daemon-reachable flag.
func (m *Model) SetAvailable(ok bool) {
	m.mu.Lock()
	m.available = ok
	m.mu.Unlock()
}

// Reset discards everything. Called when the connection drops: the
// old snapshot is untrusted until rebuilt from a fresh reply.
func (m *Model) Reset() {
	m.mu.Lock()
	m.status = Status{Volume: VolumeUnknown, Song: -1, SongID: -1, NextSongID: -1}
	m.queue = nil
	m.queueVersion = 0
	m.artURL = ""
	m.available = false
	m.lastFold = time.Time{}
	m.mu.Unlock()
}

// Snapshot is a consistent copy of the model for readers.
type Snapshot struct {
	Status    Status
	Queue     []Track
	ArtURL    string
	Available bool
}

// Snapshot returns a copy of the current state. While playing, the
// elapsed time is projected forward by the wall clock since the last
// fold, capped at the track duration; steady playback produces no
// daemon events, so the stored value alone would freeze between folds.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.status
	if st.State == Playing && !m.lastFold.IsZero() {
		st.Elapsed += m.now().Sub(m.lastFold)
		if st.Duration > 0 && st.Elapsed > st.Duration {
			st.Elapsed = st.Duration
		}
	}
	queue := make([]Track, len(m.queue))
	copy(queue, m.queue)
	return Snapshot{
		Status:    st,
		Queue:     queue,
		ArtURL:    m.artURL,
		Available: m.available,
	}
}

// CurrentTrack returns the track at the current queue index. Absence
// (stopped, empty queue, index out of bounds) is a normal state, not
// an error.
func (s Snapshot) CurrentTrack() (Track, bool) {
	if s.Status.State == Stopped || s.Status.Song < 0 {
		return Track{}, false
	}
	idx := s.Status.Song
	if idx < len(s.Queue) && s.Queue[idx].Pos == idx {
		return s.Queue[idx], true
	}
	for _, t := range s.Queue {
		if t.Pos == idx {
			return t, true
		}
	}
	return Track{}, false
}

func intOr(r mpd.Reply, key string, fallback int) int {
	if v, ok := r.GetInt(key); ok {
		return v
	}
	return fallback
}

func parseTracks(r mpd.Reply) []Track {
	records := r.Records("file")
	tracks := make([]Track, 0, len(records))
	for _, rec := range records {
		t := Track{Pos: -1, ID: -1}
		t.URI, _ = rec.Get("file")
		t.Pos = intOr(rec, "Pos", -1)
		t.ID = intOr(rec, "Id", -1)
		t.Title, _ = rec.Get("Title")
		t.Album, _ = rec.Get("Album")
		t.Genre, _ = rec.Get("Genre")
		t.Artists = dedup(rec.Values("Artist"))
		t.AlbumArtists = dedup(rec.Values("AlbumArtist"))
		t.Duration, _ = rec.GetSeconds("duration")
		if v, ok := rec.Get("Track"); ok {
			t.TrackNumber = leadingInt(v)
		}
		if v, ok := rec.Get("Disc"); ok {
			t.Disc = leadingInt(v)
		}
		tracks = append(tracks, t)
	}
	return tracks
}

// leadingInt parses numbers like "5" and "5/12" (track x of y).
func leadingInt(s string) int {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	n, _ := strconv.Atoi(s)
	return n
}

func dedup(in []string) []string {
	var out []string
	for _, s := range in {
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}

func tracksEqual(a, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Pos != b[i].Pos || a[i].URI != b[i].URI {
			return false
		}
	}
	return true
}
