package mpris

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/szclsya/mpdris2/internal/state"
)

// noTrackPath is the MPRIS sentinel for "no current track".
const noTrackPath = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")

const trackPathPrefix = "/org/musicpd/song/"

// trackPath derives the bus object path for a queue entry from its
// daemon-assigned song id.
func trackPath(id int) dbus.ObjectPath {
	return dbus.ObjectPath(trackPathPrefix + strconv.Itoa(id))
}

// parseTrackPath recovers the song id from a track object path.
func parseTrackPath(p dbus.ObjectPath) (int, bool) {
	s, ok := strings.CutPrefix(string(p), trackPathPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// trackMetadata builds the MPRIS metadata map for one track. Tags the
// track does not carry are left out rather than sent empty.
func trackMetadata(t state.Track, artURL string) map[string]dbus.Variant {
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(t.ID)),
	}
	if t.Duration > 0 {
		md["mpris:length"] = dbus.MakeVariant(t.Duration.Microseconds())
	}
	if artURL != "" {
		md["mpris:artUrl"] = dbus.MakeVariant(artURL)
	}
	if title := t.DisplayTitle(); title != "" {
		md["xesam:title"] = dbus.MakeVariant(title)
	}
	if len(t.Artists) > 0 {
		md["xesam:artist"] = dbus.MakeVariant(t.Artists)
	}
	if len(t.AlbumArtists) > 0 {
		md["xesam:albumArtist"] = dbus.MakeVariant(t.AlbumArtists)
	}
	if t.Album != "" {
		md["xesam:album"] = dbus.MakeVariant(t.Album)
	}
	if t.Genre != "" {
		md["xesam:genre"] = dbus.MakeVariant([]string{t.Genre})
	}
	if t.URI != "" {
		md["xesam:url"] = dbus.MakeVariant(t.URI)
	}
	if t.TrackNumber > 0 {
		md["xesam:trackNumber"] = dbus.MakeVariant(int32(t.TrackNumber))
	}
	if t.Disc > 0 {
		md["xesam:discNumber"] = dbus.MakeVariant(int32(t.Disc))
	}
	return md
}

// currentMetadata is the Metadata property value for a snapshot: the
// current track's map, or the NoTrack sentinel when nothing is
// current. Art only applies to the current track.
func currentMetadata(snap state.Snapshot) map[string]dbus.Variant {
	t, ok := snap.CurrentTrack()
	if !ok {
		return emptyMetadata()
	}
	return trackMetadata(t, snap.ArtURL)
}

func emptyMetadata() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(noTrackPath),
	}
}

// formatSeconds renders an absolute position for the seekid argument.
// The daemon takes fractional seconds.
func formatSeconds(us int64) string {
	return fmt.Sprintf("%.3f", float64(us)/1e6)
}

// formatOffset renders a relative seekcur argument. The leading sign
// is what tells the daemon to seek from the current position rather
// than an absolute one.
func formatOffset(us int64) string {
	return fmt.Sprintf("%+.3f", float64(us)/1e6)
}
