package state

import (
	"errors"
	"testing"
	"time"

	"github.com/szclsya/mpdris2/internal/mpd"
)

func statusReply(pairs ...mpd.Pair) mpd.Reply {
	return mpd.Reply{Pairs: pairs}
}

func playingStatus(extra ...mpd.Pair) mpd.Reply {
	base := []mpd.Pair{
		{Key: "state", Value: "play"},
		{Key: "volume", Value: "60"},
		{Key: "elapsed", Value: "10.0"},
		{Key: "duration", Value: "180.0"},
		{Key: "song", Value: "0"},
		{Key: "songid", Value: "7"},
		{Key: "nextsongid", Value: "8"},
		{Key: "playlist", Value: "3"},
		{Key: "playlistlength", Value: "2"},
	}
	return statusReply(append(base, extra...)...)
}

func queueReply() mpd.Reply {
	return mpd.Reply{Pairs: []mpd.Pair{
		{Key: "file", Value: "a.mp3"},
		{Key: "Title", Value: "Alpha"},
		{Key: "Artist", Value: "Someone"},
		{Key: "Pos", Value: "0"},
		{Key: "Id", Value: "7"},
		{Key: "duration", Value: "180.0"},
		{Key: "file", Value: "b.mp3"},
		{Key: "Pos", Value: "1"},
		{Key: "Id", Value: "8"},
	}}
}

// newTestModel pins the clock so seek detection is deterministic.
func newTestModel(t *testing.T) (*Model, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewModel()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestApplyStatusInitialFill(t *testing.T) {
	m, _ := newTestModel(t)

	diff, err := m.ApplyStatus(playingStatus())
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if !diff.Playback || !diff.Volume || !diff.Track {
		t.Errorf("initial diff = %+v, want playback/volume/track set", diff)
	}

	st := m.Snapshot().Status
	if st.State != Playing || st.Volume != 60 || st.SongID != 7 {
		t.Errorf("status = %+v", st)
	}
	if st.Elapsed != 10*time.Second || st.Duration != 180*time.Second {
		t.Errorf("elapsed/duration = %v/%v", st.Elapsed, st.Duration)
	}
	if st.QueueVersion != 3 || st.QueueLength != 2 {
		t.Errorf("queue counters = %d/%d", st.QueueVersion, st.QueueLength)
	}
}

func TestApplyStatusIdempotent(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	diff, err := m.ApplyStatus(playingStatus())
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("repeated fold produced diff %+v", diff)
	}
}

func TestApplyStatusMissingState(t *testing.T) {
	m, _ := newTestModel(t)
	_, err := m.ApplyStatus(statusReply(mpd.Pair{Key: "volume", Value: "50"}))
	var missing *MissingFieldError
	if !errors.As(err, &missing) || missing.Field != "state" {
		t.Fatalf("ApplyStatus error = %v, want MissingFieldError{state}", err)
	}
}

func TestApplyStatusMissingFieldsKeepPrior(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus(mpd.Pair{Key: "repeat", Value: "1"})); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	// A later reply without volume or repeat keeps the prior values.
	diff, err := m.ApplyStatus(statusReply(
		mpd.Pair{Key: "state", Value: "play"},
		mpd.Pair{Key: "elapsed", Value: "10.0"},
		mpd.Pair{Key: "duration", Value: "180.0"},
		mpd.Pair{Key: "song", Value: "0"},
		mpd.Pair{Key: "songid", Value: "7"},
		mpd.Pair{Key: "nextsongid", Value: "8"},
		mpd.Pair{Key: "playlist", Value: "3"},
		mpd.Pair{Key: "playlistlength", Value: "2"},
	))
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	st := m.Snapshot().Status
	if st.Volume != 60 || !st.Repeat {
		t.Errorf("status = %+v, want prior volume and repeat kept", st)
	}
	if diff.Volume {
		t.Error("missing volume field reported as a change")
	}
}

func TestApplyStatusSongAbsenceMeansNone(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	diff, err := m.ApplyStatus(statusReply(
		mpd.Pair{Key: "state", Value: "stop"},
		mpd.Pair{Key: "playlist", Value: "3"},
		mpd.Pair{Key: "playlistlength", Value: "0"},
	))
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if !diff.Playback || !diff.Track {
		t.Errorf("diff = %+v, want playback and track change", diff)
	}
	st := m.Snapshot().Status
	if st.Song != -1 || st.SongID != -1 || st.NextSongID != -1 {
		t.Errorf("song fields = %d/%d/%d, want -1", st.Song, st.SongID, st.NextSongID)
	}
	if st.Elapsed != 0 || st.Duration != 0 {
		t.Errorf("stopped elapsed/duration = %v/%v, want zero", st.Elapsed, st.Duration)
	}
}

func TestSeekDetection(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration // wall clock between folds
		elapsed string        // reported by the second fold
		seek    bool
	}{
		{"normal progress", 5 * time.Second, "15.0", false},
		{"slightly fast clock", 5 * time.Second, "16.5", false},
		{"forward seek", 5 * time.Second, "60.0", true},
		{"backward seek", 5 * time.Second, "1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, now := newTestModel(t)
			if _, err := m.ApplyStatus(playingStatus()); err != nil {
				t.Fatalf("ApplyStatus: %v", err)
			}

			*now = now.Add(tt.advance)
			diff, err := m.ApplyStatus(playingStatus(mpd.Pair{Key: "elapsed", Value: tt.elapsed}))
			if err != nil {
				t.Fatalf("ApplyStatus: %v", err)
			}
			if diff.Position != tt.seek {
				t.Errorf("Position = %v, want %v", diff.Position, tt.seek)
			}
		})
	}
}

func TestSeekDetectionPausedDoesNotProgress(t *testing.T) {
	m, now := newTestModel(t)
	paused := playingStatus()
	paused.Pairs[0].Value = "pause"
	if _, err := m.ApplyStatus(paused); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	// Ten minutes pass while paused; the unchanged elapsed value must
	// not look like a backward seek.
	*now = now.Add(10 * time.Minute)
	diff, err := m.ApplyStatus(paused)
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if diff.Position {
		t.Error("pause wrongly detected as seek")
	}
}

func TestSeekDetectionSuppressedOnTrackChange(t *testing.T) {
	m, now := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	*now = now.Add(5 * time.Second)
	diff, err := m.ApplyStatus(playingStatus(
		mpd.Pair{Key: "songid", Value: "8"},
		mpd.Pair{Key: "elapsed", Value: "0.0"},
	))
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if !diff.Track {
		t.Error("track change not detected")
	}
	if diff.Position {
		t.Error("track change wrongly reported a seek")
	}
}

func TestSnapshotProjectsElapsedWhilePlaying(t *testing.T) {
	m, now := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	// Three seconds of playback since the fold show up in the snapshot
	// even though no new status reply arrived.
	*now = now.Add(3 * time.Second)
	if got := m.Snapshot().Status.Elapsed; got != 13*time.Second {
		t.Errorf("Elapsed = %v, want 13s", got)
	}

	// The projection never runs past the end of the track.
	*now = now.Add(10 * time.Minute)
	if got := m.Snapshot().Status.Elapsed; got != 180*time.Second {
		t.Errorf("Elapsed = %v, want capped at 180s", got)
	}
}

func TestSnapshotDoesNotProjectWhilePaused(t *testing.T) {
	m, now := newTestModel(t)
	paused := playingStatus()
	paused.Pairs[0].Value = "pause"
	if _, err := m.ApplyStatus(paused); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	*now = now.Add(3 * time.Second)
	if got := m.Snapshot().Status.Elapsed; got != 10*time.Second {
		t.Errorf("Elapsed = %v, want fold value 10s", got)
	}
}

func TestApplyQueue(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	diff, err := m.ApplyQueue(queueReply(), 3)
	if err != nil {
		t.Fatalf("ApplyQueue: %v", err)
	}
	if !diff.Queue {
		t.Error("queue fill did not report a change")
	}
	if m.QueueVersion() != 3 {
		t.Errorf("QueueVersion = %d, want 3", m.QueueVersion())
	}

	// Same listing at the same version: no change, no error.
	diff, err = m.ApplyQueue(queueReply(), 3)
	if err != nil {
		t.Fatalf("ApplyQueue repeat: %v", err)
	}
	if diff.Queue {
		t.Error("identical queue reported as changed")
	}
}

func TestApplyQueueStale(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if _, err := m.ApplyQueue(queueReply(), 3); err != nil {
		t.Fatalf("ApplyQueue: %v", err)
	}

	// An older counter is stale.
	if _, err := m.ApplyQueue(queueReply(), 2); !errors.Is(err, ErrStaleQueue) {
		t.Errorf("old version error = %v, want ErrStaleQueue", err)
	}

	// The same counter with different contents is stale too.
	other := queueReply()
	other.Pairs = other.Pairs[:6]
	if _, err := m.ApplyQueue(other, 3); !errors.Is(err, ErrStaleQueue) {
		t.Errorf("same version, new contents error = %v, want ErrStaleQueue", err)
	}

	// A newer counter replaces cleanly.
	if _, err := m.ApplyQueue(other, 4); err != nil {
		t.Errorf("newer version error = %v", err)
	}
}

func TestCurrentTrack(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if _, err := m.ApplyQueue(queueReply(), 3); err != nil {
		t.Fatalf("ApplyQueue: %v", err)
	}

	track, ok := m.Snapshot().CurrentTrack()
	if !ok {
		t.Fatal("CurrentTrack not found")
	}
	if track.Title != "Alpha" || track.ID != 7 {
		t.Errorf("CurrentTrack = %+v", track)
	}
}

func TestCurrentTrackAbsent(t *testing.T) {
	m, _ := newTestModel(t)

	// Empty model: nothing current.
	if _, ok := m.Snapshot().CurrentTrack(); ok {
		t.Error("empty model reported a current track")
	}

	// Stopped: nothing current even with a queue.
	if _, err := m.ApplyStatus(statusReply(
		mpd.Pair{Key: "state", Value: "stop"},
		mpd.Pair{Key: "playlist", Value: "3"},
	)); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if _, err := m.ApplyQueue(queueReply(), 3); err != nil {
		t.Fatalf("ApplyQueue: %v", err)
	}
	if _, ok := m.Snapshot().CurrentTrack(); ok {
		t.Error("stopped player reported a current track")
	}
}

func TestReset(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ApplyStatus(playingStatus()); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if _, err := m.ApplyQueue(queueReply(), 3); err != nil {
		t.Fatalf("ApplyQueue: %v", err)
	}
	m.SetAvailable(true)
	m.SetArtURL("file:///tmp/x")

	m.Reset()

	snap := m.Snapshot()
	if snap.Available || snap.ArtURL != "" || len(snap.Queue) != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}
	if snap.Status.SongID != -1 || snap.Status.Volume != VolumeUnknown {
		t.Errorf("status after reset = %+v", snap.Status)
	}
	if m.QueueVersion() != 0 {
		t.Errorf("QueueVersion after reset = %d", m.QueueVersion())
	}
}

func TestLoopStatus(t *testing.T) {
	tests := []struct {
		repeat, single bool
		want           LoopStatus
	}{
		{false, false, LoopNone},
		{false, true, LoopNone},
		{true, false, LoopPlaylist},
		{true, true, LoopTrack},
	}
	for _, tt := range tests {
		st := Status{Repeat: tt.repeat, Single: tt.single}
		if got := st.Loop(); got != tt.want {
			t.Errorf("Loop(repeat=%v single=%v) = %v, want %v",
				tt.repeat, tt.single, got, tt.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		track Track
		want  string
	}{
		{Track{Title: "Named"}, "Named"},
		{Track{URI: "dir/sub/song.flac"}, "song.flac"},
		{Track{URI: "toplevel.mp3"}, "toplevel.mp3"},
	}
	for _, tt := range tests {
		if got := tt.track.DisplayTitle(); got != tt.want {
			t.Errorf("DisplayTitle(%+v) = %q, want %q", tt.track, got, tt.want)
		}
	}
}

func TestParseTracksTags(t *testing.T) {
	r := mpd.Reply{Pairs: []mpd.Pair{
		{Key: "file", Value: "a.mp3"},
		{Key: "Artist", Value: "One"},
		{Key: "Artist", Value: "One"},
		{Key: "Artist", Value: "Two"},
		{Key: "Track", Value: "5/12"},
		{Key: "Disc", Value: "2"},
		{Key: "Pos", Value: "0"},
		{Key: "Id", Value: "1"},
	}}
	tracks := parseTracks(r)
	if len(tracks) != 1 {
		t.Fatalf("parseTracks returned %d tracks", len(tracks))
	}
	got := tracks[0]
	if len(got.Artists) != 2 {
		t.Errorf("Artists = %v, want duplicates folded", got.Artists)
	}
	if got.TrackNumber != 5 || got.Disc != 2 {
		t.Errorf("TrackNumber/Disc = %d/%d", got.TrackNumber, got.Disc)
	}
}
