// Package notify relays playback changes to the desktop notification
// service. Notifications are best effort: a missing or broken
// notification daemon never disturbs the bridge.
package notify

import (
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/szclsya/mpdris2/internal/state"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	method     = busName + ".Notify"

	// defaultIcon is used when the track has no album art.
	defaultIcon = "/usr/share/icons/hicolor/scalable/apps/mpd.svg"

	expireTimeout = int32(5000) // ms
)

// Relay implements bridge.Listener and turns track and playback
// changes into desktop notifications. The notification id is reused so
// successive changes update one bubble instead of stacking.
type Relay struct {
	obj    dbus.BusObject
	lastID uint32
	log    zerolog.Logger
}

// New builds a relay on an existing session bus connection.
func New(conn *dbus.Conn, logger zerolog.Logger) *Relay {
	return &Relay{
		obj: conn.Object(busName, objectPath),
		log: logger.With().Str("component", "notify").Logger(),
	}
}

// Refresh is silent: reconnecting is not a playback event worth a
// toast.
func (r *Relay) Refresh(state.Snapshot) {}

// Unavailable is silent for the same reason.
func (r *Relay) Unavailable() {}

// Changed sends a notification for track and play/pause transitions.
// Seeks, volume and option changes stay quiet.
func (r *Relay) Changed(diff state.Diff, snap state.Snapshot) {
	if !diff.Track && !diff.Playback {
		return
	}
	r.send(snap)
}

func (r *Relay) send(snap state.Snapshot) {
	summary := snap.Status.State.String()
	body := ""
	if track, ok := snap.CurrentTrack(); ok {
		body = track.DisplayTitle()
		if len(track.Artists) > 0 {
			body = track.Artists[0] + " - " + body
		}
	}

	icon := snap.ArtURL
	if icon == "" {
		icon = defaultIcon
	}

	// Notify(app_name, replaces_id, app_icon, summary, body, actions,
	// hints, expire_timeout).
	call := r.obj.Call(method, 0, "mpdris2", r.lastID, icon, summary, body,
		[]string{}, map[string]dbus.Variant{}, expireTimeout)
	if call.Err != nil {
		r.log.Debug().Err(call.Err).Msg("Notification delivery failed")
		return
	}
	if err := call.Store(&r.lastID); err != nil {
		r.log.Debug().Err(err).Msg("Notification reply malformed")
	}
}
