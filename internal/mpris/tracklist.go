package mpris

import (
	"strconv"

	"github.com/godbus/dbus/v5"

	"github.com/szclsya/mpdris2/internal/mpd"
)

// tracklistObject exports org.mpris.MediaPlayer2.TrackList on top of
// the queue snapshot. The queue is read-only over the bus; edits stay
// with dedicated MPD clients.
type tracklistObject struct {
	a *Adapter
}

// GetTracksMetadata resolves metadata for the requested queue entries.
// Unknown ids yield an empty map in the same slot, keeping the reply
// aligned with the request.
func (t *tracklistObject) GetTracksMetadata(paths []dbus.ObjectPath) ([]map[string]dbus.Variant, *dbus.Error) {
	snap := t.a.model.Snapshot()
	byID := make(map[int]int, len(snap.Queue))
	for i, track := range snap.Queue {
		byID[track.ID] = i
	}

	out := make([]map[string]dbus.Variant, 0, len(paths))
	for _, p := range paths {
		id, ok := parseTrackPath(p)
		if !ok {
			out = append(out, map[string]dbus.Variant{})
			continue
		}
		idx, ok := byID[id]
		if !ok {
			out = append(out, map[string]dbus.Variant{})
			continue
		}
		art := ""
		if id == snap.Status.SongID {
			art = snap.ArtURL
		}
		out = append(out, trackMetadata(snap.Queue[idx], art))
	}
	return out, nil
}

// GoTo jumps playback to the given queue entry. The id survives queue
// reordering, so no index translation is needed.
func (t *tracklistObject) GoTo(path dbus.ObjectPath) *dbus.Error {
	id, ok := parseTrackPath(path)
	if !ok {
		return nil
	}
	return t.a.command("GoTo", mpd.Cmd("playid", strconv.Itoa(id)))
}

// AddTrack is accepted and ignored; CanEditTracks is false.
func (t *tracklistObject) AddTrack(uri string, after dbus.ObjectPath, setAsCurrent bool) *dbus.Error {
	return nil
}

// RemoveTrack is accepted and ignored; CanEditTracks is false.
func (t *tracklistObject) RemoveTrack(path dbus.ObjectPath) *dbus.Error {
	return nil
}
