package mpris

import (
	"fmt"
	"strconv"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/state"
)

// propSpec builds the full property table for all three interfaces,
// seeded from the given snapshot. Writable properties translate a Set
// into daemon commands; the resulting state change flows back through
// the change-detection loop like any other.
func (a *Adapter) propSpec(snap state.Snapshot) map[string]map[string]*prop.Prop {
	st := snap.Status
	return map[string]map[string]*prop.Prop{
		rootInterface: {
			"CanQuit":             constProp(false),
			"CanRaise":            constProp(false),
			"CanSetFullscreen":    constProp(false),
			"Fullscreen":          constProp(false),
			"HasTrackList":        constProp(true),
			"Identity":            constProp("Music Player Daemon"),
			"DesktopEntry":        constProp("mpd"),
			"SupportedUriSchemes": constProp([]string{}),
			"SupportedMimeTypes":  constProp([]string{}),
		},
		playerInterface: {
			"PlaybackStatus": readonlyProp(st.State.String()),
			"LoopStatus": {
				Value:    string(st.Loop()),
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: a.setLoopStatus,
			},
			"Rate": {
				Value:    1.0,
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: a.setRate,
			},
			"Shuffle": {
				Value:    st.Random,
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: a.setShuffle,
			},
			"Metadata": readonlyProp(currentMetadata(snap)),
			"Volume": {
				Value:    volumeToMpris(st.Volume),
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: a.setVolumeProp,
			},
			// Position is polled, never signalled; clients interpolate
			// between Seeked emissions.
			"Position": {
				Value:    st.Elapsed.Microseconds(),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
			"MinimumRate":   constProp(1.0),
			"MaximumRate":   constProp(1.0),
			"CanGoNext":     readonlyProp(st.NextSongID >= 0 || st.Loop() == state.LoopPlaylist),
			"CanGoPrevious": readonlyProp(true),
			"CanPlay":       readonlyProp(st.State != state.Stopped || st.QueueLength > 0),
			"CanPause":      readonlyProp(true),
			"CanSeek":       readonlyProp(true),
			"CanControl":    constProp(true),
		},
		tracklistInterface: {
			"Tracks": {
				Value:    queueIDs(snap),
				Writable: false,
				Emit:     prop.EmitInvalidates,
			},
			"CanEditTracks": constProp(false),
		},
	}
}

// constProp never changes after export.
func constProp(v interface{}) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitFalse}
}

// readonlyProp is updated from the loop and signalled to clients.
func readonlyProp(v interface{}) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
}

func (a *Adapter) setLoopStatus(c *prop.Change) *dbus.Error {
	mode, ok := c.Value.(string)
	if !ok {
		return prop.ErrInvalidArg
	}
	var repeat, single string
	switch state.LoopStatus(mode) {
	case state.LoopNone:
		repeat, single = "0", "0"
	case state.LoopPlaylist:
		repeat, single = "1", "0"
	case state.LoopTrack:
		repeat, single = "1", "1"
	default:
		return dbus.MakeFailedError(fmt.Errorf("unknown loop status %q", mode))
	}
	return a.command("Set LoopStatus", mpd.Cmd("repeat", repeat), mpd.Cmd("single", single))
}

func (a *Adapter) setShuffle(c *prop.Change) *dbus.Error {
	on, ok := c.Value.(bool)
	if !ok {
		return prop.ErrInvalidArg
	}
	arg := "0"
	if on {
		arg = "1"
	}
	return a.command("Set Shuffle", mpd.Cmd("random", arg))
}

func (a *Adapter) setVolumeProp(c *prop.Change) *dbus.Error {
	vol, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	pct := int(vol*100 + 0.5)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return a.command("Set Volume", mpd.Cmd("setvol", strconv.Itoa(pct)))
}

// setRate accepts only the one supported rate. A rate of zero is a
// pause request, per the MPRIS spec.
func (a *Adapter) setRate(c *prop.Change) *dbus.Error {
	rate, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	if rate == 0 {
		return a.command("Set Rate", mpd.Cmd("pause", "1"))
	}
	if rate != 1.0 {
		return prop.ErrInvalidArg
	}
	return nil
}

// introspection describes the exported objects for D-Bus browsers.
func (a *Adapter) introspection() *introspect.Node {
	return &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: rootInterface,
				Methods: []introspect.Method{
					{Name: "Raise"},
					{Name: "Quit"},
				},
				Properties: a.props.Introspection(rootInterface),
			},
			{
				Name: playerInterface,
				Methods: []introspect.Method{
					{Name: "Next"},
					{Name: "Previous"},
					{Name: "Pause"},
					{Name: "PlayPause"},
					{Name: "Stop"},
					{Name: "Play"},
					{Name: "Seek", Args: []introspect.Arg{
						{Name: "Offset", Type: "x", Direction: "in"},
					}},
					{Name: "SetPosition", Args: []introspect.Arg{
						{Name: "TrackId", Type: "o", Direction: "in"},
						{Name: "Position", Type: "x", Direction: "in"},
					}},
					{Name: "OpenUri", Args: []introspect.Arg{
						{Name: "Uri", Type: "s", Direction: "in"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "Seeked", Args: []introspect.Arg{
						{Name: "Position", Type: "x"},
					}},
				},
				Properties: a.props.Introspection(playerInterface),
			},
			{
				Name: tracklistInterface,
				Methods: []introspect.Method{
					{Name: "GetTracksMetadata", Args: []introspect.Arg{
						{Name: "TrackIds", Type: "ao", Direction: "in"},
						{Name: "Metadata", Type: "aa{sv}", Direction: "out"},
					}},
					{Name: "AddTrack", Args: []introspect.Arg{
						{Name: "Uri", Type: "s", Direction: "in"},
						{Name: "AfterTrack", Type: "o", Direction: "in"},
						{Name: "SetAsCurrent", Type: "b", Direction: "in"},
					}},
					{Name: "RemoveTrack", Args: []introspect.Arg{
						{Name: "TrackId", Type: "o", Direction: "in"},
					}},
					{Name: "GoTo", Args: []introspect.Arg{
						{Name: "TrackId", Type: "o", Direction: "in"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "TrackListReplaced", Args: []introspect.Arg{
						{Name: "Tracks", Type: "ao"},
						{Name: "CurrentTrack", Type: "o"},
					}},
				},
				Properties: a.props.Introspection(tracklistInterface),
			},
		},
	}
}
