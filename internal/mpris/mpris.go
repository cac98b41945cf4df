// Package mpris exposes the player state model on the D-Bus session
// bus as an org.mpris.MediaPlayer2 player, and translates inbound
// method calls into daemon commands.
package mpris

import (
	"context"
	"errors"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog"

	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/state"
)

const (
	// BusName is the well-known name claimed on the session bus.
	BusName = "org.mpris.MediaPlayer2.mpd"
	// ObjectPath is where all three interfaces live, per the MPRIS spec.
	ObjectPath = dbus.ObjectPath("/org/mpris/MediaPlayer2")

	rootInterface      = "org.mpris.MediaPlayer2"
	playerInterface    = "org.mpris.MediaPlayer2.Player"
	tracklistInterface = "org.mpris.MediaPlayer2.TrackList"

	// commandTimeout bounds a bus-triggered daemon round trip.
	commandTimeout = 10 * time.Second
)

// Commander issues daemon commands through the change-detection loop,
// which cancels a pending idle wait and re-syncs afterwards.
type Commander interface {
	Command(ctx context.Context, cmds ...mpd.Command) ([]mpd.Reply, error)
}

// Adapter owns the exported bus objects and keeps their properties in
// step with the state model. It implements bridge.Listener.
type Adapter struct {
	conn  *dbus.Conn
	props *prop.Properties
	model *state.Model
	cmd   Commander
	log   zerolog.Logger
}

// Start exports the MPRIS objects on conn and claims the bus name.
// Property reads are answered from the model snapshot; no call ever
// makes a daemon round trip except the method translations.
func Start(conn *dbus.Conn, model *state.Model, cmd Commander, logger zerolog.Logger) (*Adapter, error) {
	a := &Adapter{
		conn:  conn,
		model: model,
		cmd:   cmd,
		log:   logger.With().Str("component", "mpris").Logger(),
	}

	if err := conn.Export(&rootObject{}, ObjectPath, rootInterface); err != nil {
		return nil, err
	}
	if err := conn.Export(&playerObject{a: a}, ObjectPath, playerInterface); err != nil {
		return nil, err
	}
	if err := conn.Export(&tracklistObject{a: a}, ObjectPath, tracklistInterface); err != nil {
		return nil, err
	}

	snap := model.Snapshot()
	props, err := prop.Export(conn, ObjectPath, a.propSpec(snap))
	if err != nil {
		return nil, err
	}
	a.props = props

	if err := conn.Export(introspect.NewIntrospectable(a.introspection()), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagReplaceExisting)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("mpris: bus name " + BusName + " already taken")
	}

	a.log.Info().Str("bus_name", BusName).Msg("MPRIS interface up")
	return a, nil
}

// Refresh pushes every property after a (re)connect. No diff is
// computed for the initial fill; everything is refreshed wholesale.
func (a *Adapter) Refresh(snap state.Snapshot) {
	a.setPlayback(snap)
	a.setMetadata(snap)
	a.setVolume(snap)
	a.setOptions(snap)
	a.setTracklist(snap)
	a.setPosition(snap)
	a.setCapabilities(snap)
}

// Changed maps a model diff onto property-changed and Seeked signals.
func (a *Adapter) Changed(diff state.Diff, snap state.Snapshot) {
	if diff.Playback {
		a.setPlayback(snap)
	}
	if diff.Volume {
		a.setVolume(snap)
	}
	if diff.Options {
		a.setOptions(snap)
	}
	if diff.Track {
		a.setMetadata(snap)
	}
	if diff.Queue {
		a.setTracklist(snap)
		a.emitTrackListReplaced(snap)
	}
	if diff.Track || diff.Queue || diff.Playback || diff.Options {
		a.setCapabilities(snap)
	}
	a.setPosition(snap)
	if diff.Position {
		a.emitSeeked(snap.Status.Elapsed)
	}
}

// Unavailable blanks the player while the daemon is unreachable, so
// bus clients never observe stale data.
func (a *Adapter) Unavailable() {
	a.props.SetMust(playerInterface, "PlaybackStatus", state.Stopped.String())
	a.props.SetMust(playerInterface, "Metadata", emptyMetadata())
	a.props.SetMust(playerInterface, "CanPlay", false)
	a.props.SetMust(playerInterface, "CanGoNext", false)
	a.props.SetMust(playerInterface, "Position", int64(0))
	a.props.SetMust(tracklistInterface, "Tracks", []dbus.ObjectPath{})
}

func (a *Adapter) setPlayback(snap state.Snapshot) {
	a.props.SetMust(playerInterface, "PlaybackStatus", snap.Status.State.String())
}

func (a *Adapter) setVolume(snap state.Snapshot) {
	a.props.SetMust(playerInterface, "Volume", volumeToMpris(snap.Status.Volume))
}

func (a *Adapter) setOptions(snap state.Snapshot) {
	a.props.SetMust(playerInterface, "LoopStatus", string(snap.Status.Loop()))
	a.props.SetMust(playerInterface, "Shuffle", snap.Status.Random)
}

func (a *Adapter) setMetadata(snap state.Snapshot) {
	a.props.SetMust(playerInterface, "Metadata", currentMetadata(snap))
}

func (a *Adapter) setPosition(snap state.Snapshot) {
	a.props.SetMust(playerInterface, "Position", snap.Status.Elapsed.Microseconds())
}

func (a *Adapter) setCapabilities(snap state.Snapshot) {
	st := snap.Status
	a.props.SetMust(playerInterface, "CanGoNext",
		st.NextSongID >= 0 || st.Loop() == state.LoopPlaylist)
	a.props.SetMust(playerInterface, "CanPlay",
		st.State != state.Stopped || st.QueueLength > 0)
}

func (a *Adapter) setTracklist(snap state.Snapshot) {
	a.props.SetMust(tracklistInterface, "Tracks", queueIDs(snap))
}

func (a *Adapter) emitSeeked(pos time.Duration) {
	if err := a.conn.Emit(ObjectPath, playerInterface+".Seeked", pos.Microseconds()); err != nil {
		a.log.Warn().Err(err).Msg("Failed to emit Seeked")
	}
}

func (a *Adapter) emitTrackListReplaced(snap state.Snapshot) {
	current := noTrackPath
	if t, ok := snap.CurrentTrack(); ok {
		current = trackPath(t.ID)
	}
	if err := a.conn.Emit(ObjectPath, tracklistInterface+".TrackListReplaced",
		queueIDs(snap), current); err != nil {
		a.log.Warn().Err(err).Msg("Failed to emit TrackListReplaced")
	}
}

// command runs daemon commands for a method handler and converts the
// failure into a D-Bus error for the calling client. Daemon
// rejections surface synchronously; they are not retried.
func (a *Adapter) command(method string, cmds ...mpd.Command) *dbus.Error {
	_, err := a.runCommands(method, cmds...)
	return err
}

// runCommands is command for the handlers that need the replies.
func (a *Adapter) runCommands(method string, cmds ...mpd.Command) ([]mpd.Reply, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	replies, err := a.cmd.Command(ctx, cmds...)
	if err != nil {
		a.log.Error().Err(err).Str("method", method).Msg("Method call failed")
		return nil, dbus.MakeFailedError(err)
	}
	return replies, nil
}

func volumeToMpris(v int) float64 {
	if v == state.VolumeUnknown {
		return 1.0
	}
	return float64(v) / 100.0
}

func queueIDs(snap state.Snapshot) []dbus.ObjectPath {
	ids := make([]dbus.ObjectPath, 0, len(snap.Queue))
	for _, t := range snap.Queue {
		ids = append(ids, trackPath(t.ID))
	}
	return ids
}
