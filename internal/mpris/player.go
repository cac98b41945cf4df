package mpris

import (
	"strconv"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/state"
)

// previousRestartThreshold makes Previous restart the current track
// instead of jumping back when playback is already well underway,
// matching what most desktop players do.
const previousRestartThreshold = 3 * time.Second

// playerObject exports org.mpris.MediaPlayer2.Player.
type playerObject struct {
	a *Adapter
}

func (p *playerObject) Play() *dbus.Error {
	return p.a.command("Play", mpd.Cmd("play"))
}

func (p *playerObject) Pause() *dbus.Error {
	return p.a.command("Pause", mpd.Cmd("pause", "1"))
}

// PlayPause picks the toggle direction from the snapshot so a stopped
// player starts playing instead of erroring on a bare pause.
func (p *playerObject) PlayPause() *dbus.Error {
	switch p.a.model.Snapshot().Status.State {
	case state.Playing:
		return p.a.command("PlayPause", mpd.Cmd("pause", "1"))
	case state.Paused:
		return p.a.command("PlayPause", mpd.Cmd("pause", "0"))
	default:
		return p.a.command("PlayPause", mpd.Cmd("play"))
	}
}

func (p *playerObject) Stop() *dbus.Error {
	return p.a.command("Stop", mpd.Cmd("stop"))
}

func (p *playerObject) Next() *dbus.Error {
	return p.a.command("Next", mpd.Cmd("next"))
}

// Previous restarts the current track when more than a few seconds in,
// and only jumps to the previous entry near the start.
func (p *playerObject) Previous() *dbus.Error {
	if p.a.model.Snapshot().Status.Elapsed > previousRestartThreshold {
		return p.a.command("Previous", mpd.Cmd("seekcur", "0"))
	}
	return p.a.command("Previous", mpd.Cmd("previous"))
}

// Seek moves relative to the current position. Seeking before the
// start clamps to zero; seeking past the end advances to the next
// track, as the MPRIS spec asks. The in-range case sends the signed
// relative form and lets the daemon resolve its own position, so the
// jump stays exact even when the snapshot is a fold behind.
func (p *playerObject) Seek(offset int64) *dbus.Error {
	st := p.a.model.Snapshot().Status
	target := st.Elapsed.Microseconds() + offset
	switch {
	case target < 0:
		return p.a.command("Seek", mpd.Cmd("seekcur", "0"))
	case st.Duration > 0 && target > st.Duration.Microseconds():
		return p.a.command("Seek", mpd.Cmd("next"))
	default:
		return p.a.command("Seek", mpd.Cmd("seekcur", formatOffset(offset)))
	}
}

// SetPosition seeks to an absolute position in the given track. A
// track id that is not the current track is rejected; the caller is
// acting on a stale snapshot. An out-of-range position is dropped
// without error, per the MPRIS spec.
func (p *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	st := p.a.model.Snapshot().Status
	id, ok := parseTrackPath(trackID)
	if !ok || id != st.SongID {
		return dbus.NewError(playerInterface+".Error.InvalidTrack",
			[]interface{}{string(trackID)})
	}
	if position < 0 || (st.Duration > 0 && position > st.Duration.Microseconds()) {
		return nil
	}
	return p.a.command("SetPosition",
		mpd.Cmd("seekid", strconv.Itoa(id), formatSeconds(position)))
}

// OpenUri queues the URI and starts playing it.
func (p *playerObject) OpenUri(uri string) *dbus.Error {
	replies, err := p.a.runCommands("OpenUri", mpd.Cmd("addid", uri))
	if err != nil {
		return err
	}
	id, ok := replies[0].GetInt("Id")
	if !ok {
		return p.a.command("OpenUri", mpd.Cmd("play"))
	}
	return p.a.command("OpenUri", mpd.Cmd("playid", strconv.Itoa(id)))
}
