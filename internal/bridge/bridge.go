// Package bridge runs the change-detection loop: it owns the one MPD
// connection, alternates between idle waits and re-queries, folds
// replies into the state model, and fans resulting diffs out to
// listeners (the bus adapter, the notification relay).
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/szclsya/mpdris2/internal/art"
	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/state"
)

// ErrUnavailable is returned to bus-triggered commands while the
// daemon connection is down.
var ErrUnavailable = errors.New("bridge: mpd unavailable")

// staleQueueRetries bounds the status/queue refetch dance when the
// queue version moves while we are reading it.
const staleQueueRetries = 3

// Listener receives state updates. Refresh is a full property refresh
// after (re)connect, Changed carries an incremental diff, Unavailable
// marks the player unreachable until the next Refresh.
type Listener interface {
	Refresh(snap state.Snapshot)
	Changed(diff state.Diff, snap state.Snapshot)
	Unavailable()
}

// Config holds bridge settings.
type Config struct {
	Addr           string
	Password       string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// artFetcher is the album art lookup consulted on track changes.
// *art.Fetcher implements it.
type artFetcher interface {
	Fetch(ctx context.Context, client *mpd.Client, uri string, songID int) (string, error)
}

// Bridge coordinates the connection, the model and the listeners.
// Only the Run goroutine touches the connection; bus-triggered
// commands are funneled through a request channel so an outstanding
// idle can be cancelled and no change notification is lost.
type Bridge struct {
	cfg       Config
	model     *state.Model
	artCache  artFetcher
	listeners []Listener
	requests  chan *request
	wake      chan struct{}
	log       zerolog.Logger
}

type request struct {
	cmds  []mpd.Command
	reply chan result
}

type result struct {
	replies []mpd.Reply
	err     error
}

// New creates a Bridge. artCache may be nil to disable album art.
func New(cfg Config, model *state.Model, artCache *art.Fetcher, logger zerolog.Logger) *Bridge {
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	b := &Bridge{
		cfg:      cfg,
		model:    model,
		requests: make(chan *request, 16),
		wake:     make(chan struct{}, 1),
		log:      logger.With().Str("component", "bridge").Logger(),
	}
	if artCache != nil {
		b.artCache = artCache
	}
	return b
}

// AddListener registers a listener. Must be called before Run.
func (b *Bridge) AddListener(l Listener) {
	b.listeners = append(b.listeners, l)
}

// Model returns the shared state model.
func (b *Bridge) Model() *state.Model { return b.model }

// Command executes commands on the daemon connection from outside the
// loop (bus method calls). It cancels a pending idle wait, runs the
// commands in order, and the loop then re-queries status so the
// caller's effect shows up in the next diff. A daemon rejection comes
// back as *mpd.CommandError; the commands after it are not run.
func (b *Bridge) Command(ctx context.Context, cmds ...mpd.Command) ([]mpd.Reply, error) {
	if !b.model.Snapshot().Available {
		return nil, ErrUnavailable
	}
	req := &request{cmds: cmds, reply: make(chan result, 1)}
	select {
	case b.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Wake the loop out of its idle wait.
	select {
	case b.wake <- struct{}{}:
	default:
	}
	select {
	case res := <-req.reply:
		return res.replies, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run connects and serves until ctx is cancelled. Connection failures
// are retried with exponential backoff and the model is rebuilt from
// scratch after every reconnect. A protocol mismatch on the very
// first connect is fatal: no daemon, no service.
func (b *Bridge) Run(ctx context.Context) error {
	first := true
	backoff := b.cfg.InitialBackoff
	for {
		client, err := mpd.Connect(ctx, b.cfg.Addr, b.log)
		if err != nil {
			var ce *mpd.ConnError
			if first && errors.As(err, &ce) && ce.Kind == mpd.ConnProtocolMismatch {
				return fmt.Errorf("handshake with %s failed: %w", b.cfg.Addr, err)
			}
			first = false
			if ctx.Err() != nil {
				return nil
			}
			b.log.Error().Err(err).Dur("retry_in", backoff).Msg("Cannot connect to MPD")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(backoff*2, b.cfg.MaxBackoff)
			continue
		}
		first = false
		backoff = b.cfg.InitialBackoff
		b.log.Info().Str("addr", client.Addr()).Str("mpd_version", client.Version()).Msg("Connected")

		err = b.authenticate(ctx, client)
		if err == nil {
			err = b.serve(ctx, client)
		}
		client.Close()
		b.model.Reset()
		b.failPending()
		if ctx.Err() != nil {
			// Clean shutdown: no further signals.
			return nil
		}
		b.log.Warn().Err(err).Msg("Connection lost")
		for _, l := range b.listeners {
			l.Unavailable()
		}
	}
}

// authenticate sends the password before anything else touches the
// connection.
func (b *Bridge) authenticate(ctx context.Context, client *mpd.Client) error {
	if b.cfg.Password == "" {
		return nil
	}
	_, err := client.Execute(ctx, mpd.Cmd("password", b.cfg.Password))
	return err
}

// serve does the initial fill and then loops: idle, handle queued
// commands, re-query what changed, emit the diff.
func (b *Bridge) serve(ctx context.Context, client *mpd.Client) error {
	if _, err := b.resync(ctx, client); err != nil {
		return err
	}
	b.model.SetAvailable(true)
	snap := b.model.Snapshot()
	for _, l := range b.listeners {
		l.Refresh(snap)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		changed, err := b.idle(ctx, client)
		if err != nil {
			return err
		}
		handled, err := b.handleRequests(ctx, client)
		if err != nil {
			return err
		}
		if len(changed) == 0 && handled == 0 {
			continue
		}

		diff, err := b.resync(ctx, client)
		if err != nil {
			return err
		}
		if diff.Empty() {
			continue
		}
		snap := b.model.Snapshot()
		for _, l := range b.listeners {
			l.Changed(diff, snap)
		}
	}
}

// idle waits for a daemon change, a queued command (via the wake
// channel), or shutdown. The cancellation runs through the client's
// CancelIdle, so a daemon change racing the cancellation still shows
// up in the returned subsystems or on the next wait.
func (b *Bridge) idle(ctx context.Context, client *mpd.Client) ([]string, error) {
	idleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-b.wake:
			cancel()
		case <-idleCtx.Done():
		}
	}()
	changed, err := client.Idle(idleCtx,
		mpd.SubsystemPlayer, mpd.SubsystemQueue, mpd.SubsystemMixer, mpd.SubsystemOptions)
	cancel()
	<-done
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		b.log.Debug().Strs("subsystems", changed).Msg("Idle woke")
	}
	return changed, nil
}

// handleRequests drains queued bus commands. Daemon rejections go back
// to the requester and leave the connection running; connection errors
// abort the serve loop.
func (b *Bridge) handleRequests(ctx context.Context, client *mpd.Client) (int, error) {
	handled := 0
	for {
		select {
		case req := <-b.requests:
			handled++
			res := b.execute(ctx, client, req.cmds)
			req.reply <- res
			if res.err != nil && mpd.IsConnError(res.err) {
				return handled, res.err
			}
		default:
			return handled, nil
		}
	}
}

func (b *Bridge) execute(ctx context.Context, client *mpd.Client, cmds []mpd.Command) result {
	var res result
	for _, cmd := range cmds {
		r, err := client.Execute(ctx, cmd)
		if err != nil {
			res.err = err
			return res
		}
		res.replies = append(res.replies, r)
	}
	return res
}

// resync re-queries status (always) and the queue (when its version
// counter moved), folding both into the model. A stale queue listing
// means the daemon changed it mid-read; re-query until the counters
// agree.
func (b *Bridge) resync(ctx context.Context, client *mpd.Client) (state.Diff, error) {
	r, err := client.Execute(ctx, mpd.Cmd("status"))
	if err != nil {
		return state.Diff{}, err
	}
	diff, err := b.model.ApplyStatus(r)
	if err != nil {
		// A status reply we cannot interpret leaves us with no trusted
		// snapshot; treat like a broken connection.
		return state.Diff{}, err
	}

	version := b.model.Snapshot().Status.QueueVersion
	for attempt := 0; version != b.model.QueueVersion(); attempt++ {
		if attempt >= staleQueueRetries {
			return state.Diff{}, fmt.Errorf("queue version would not settle at %d", version)
		}
		qr, err := client.Execute(ctx, mpd.Cmd("playlistinfo"))
		if err != nil {
			return state.Diff{}, err
		}
		qdiff, err := b.model.ApplyQueue(qr, version)
		if errors.Is(err, state.ErrStaleQueue) {
			// The queue moved again under us; refresh the counter and
			// retry.
			r, rerr := client.Execute(ctx, mpd.Cmd("status"))
			if rerr != nil {
				return state.Diff{}, rerr
			}
			sdiff, serr := b.model.ApplyStatus(r)
			if serr != nil {
				return state.Diff{}, serr
			}
			diff = diff.Merge(sdiff)
			version = b.model.Snapshot().Status.QueueVersion
			continue
		}
		if err != nil {
			return state.Diff{}, err
		}
		diff = diff.Merge(qdiff)
	}

	if diff.Track {
		if err := b.updateArt(ctx, client); err != nil {
			return state.Diff{}, err
		}
	}
	return diff, nil
}

// updateArt refreshes the cached album art for the current track.
// Tracks without art are normal and stay quiet; a broken cache (say an
// unwritable directory) is worth a warning. Only connection failures
// propagate.
func (b *Bridge) updateArt(ctx context.Context, client *mpd.Client) error {
	if b.artCache == nil {
		return nil
	}
	track, ok := b.model.Snapshot().CurrentTrack()
	if !ok {
		b.model.SetArtURL("")
		return nil
	}
	url, err := b.artCache.Fetch(ctx, client, track.URI, track.ID)
	switch {
	case err == nil:
		b.model.SetArtURL(url)
		return nil
	case mpd.IsConnError(err):
		return err
	case errors.Is(err, art.ErrNoArt):
		b.log.Debug().Str("uri", track.URI).Msg("No album art")
	default:
		b.log.Warn().Err(err).Str("uri", track.URI).Msg("Album art lookup failed")
	}
	b.model.SetArtURL("")
	return nil
}

// failPending rejects queued requests after the connection died so
// callers are not left hanging until their own timeout.
func (b *Bridge) failPending() {
	for {
		select {
		case req := <-b.requests:
			req.reply <- result{err: ErrUnavailable}
		default:
			return
		}
	}
}
