// Package relay pairs SSH logins with device sockets and relays shell
// sessions between them.
//
// A login whose user name is the token of a paired device opens another
// session on that device. Any other login is handed a fresh token and waits
// for a device to announce it. Each device connection multiplexes its
// sessions by SessionID.
package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chronologos/ttyrelay/internal/auth"
	"github.com/chronologos/ttyrelay/internal/terminal"
	"github.com/chronologos/ttyrelay/internal/transport"
)

// State is the lifecycle of one pairing.
type State int

const (
	StateNew State = iota
	StateWaitingForDevice
	StatePaired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateWaitingForDevice:
		return "WAITING_FOR_DEVICE"
	case StatePaired:
		return "PAIRED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const DefaultPairingTimeout = 10 * time.Minute

// Finished tokens are remembered as CLOSED for a while, so callers can tell
// them apart from tokens never issued.
const (
	closedTokenLimit = 4096
	closedTokenTTL   = time.Hour
)

// Options configure a Registry.
type Options struct {
	// PairingTimeout bounds how long a login waits for its device.
	PairingTimeout time.Duration
	// PublicURL is the address shown in the device bootstrap command.
	PublicURL  string
	ColorLevel terminal.Level
	// FlushDelay batches session output; zero uses the coalesce default.
	FlushDelay time.Duration
	Log        *slog.Logger
	Metrics    *Metrics
}

// pairing is a login waiting for its device.
type pairing struct {
	ready chan *Connection // buffered; filled under Registry.mu
}

type closedToken struct {
	token string
	at    time.Time
}

// Registry maps pairing tokens to waiting logins and paired devices.
type Registry struct {
	opts    Options
	log     *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	waiting map[string]*pairing
	conns   map[string]*Connection
	closed  map[string]struct{}
	// closedOrder holds the closed tokens oldest first.
	closedOrder []closedToken
}

func NewRegistry(opts Options) *Registry {
	if opts.PairingTimeout <= 0 {
		opts.PairingTimeout = DefaultPairingTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Registry{
		opts:    opts,
		log:     opts.Log.With("component", "relay"),
		metrics: opts.Metrics,
		waiting: make(map[string]*pairing),
		conns:   make(map[string]*Connection),
		closed:  make(map[string]struct{}),
	}
}

// State reports where token is in its lifecycle. A token that timed out,
// was cancelled or lost its device is StateClosed for closedTokenTTL; one
// the registry never issued is StateNew.
func (r *Registry) State(token string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waiting[token]; ok {
		return StateWaitingForDevice
	}
	if c, ok := r.conns[token]; ok {
		return c.State()
	}
	if _, ok := r.closed[token]; ok {
		return StateClosed
	}
	return StateNew
}

// Lookup returns the paired connection for token.
func (r *Registry) Lookup(token string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[token]
	return c, ok
}

// Claim matches an arriving device to the login waiting on token. The
// caller must follow up with Serve or Abandon on the returned Connection.
func (r *Registry) Claim(token string) (*Connection, error) {
	tok, err := auth.ParsePairingToken(token)
	if err != nil {
		r.metrics.pairing(outcomeRejected)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.waiting[tok]
	if !ok {
		r.metrics.pairing(outcomeRejected)
		if _, paired := r.conns[tok]; paired {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyPaired, tok)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, tok)
	}
	delete(r.waiting, tok)
	c := newConnection(r, tok)
	r.conns[tok] = c
	p.ready <- c
	r.metrics.pairing(outcomePaired)
	r.metrics.connectionOpened()
	return c, nil
}

// HandleDevice claims token for an already established device socket and
// serves it. A rejected device is closed with the reason.
func (r *Registry) HandleDevice(ctx context.Context, kind transport.Kind, token string, conn transport.Conn) error {
	c, err := r.Claim(token)
	if err != nil {
		r.log.Warn("device rejected", "transport", kind, "remote", conn.RemoteAddr(), "err", err)
		conn.Close(err.Error())
		return err
	}
	return c.Serve(ctx, kind, conn)
}

// release drops c from the registry once its device is gone.
func (r *Registry) release(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[c.token] == c {
		delete(r.conns, c.token)
		r.markClosed(c.token)
		r.metrics.connectionClosed()
	}
}

// markClosed records token as finished and forgets the oldest records past
// the limit or the TTL. r.mu must be held.
func (r *Registry) markClosed(token string) {
	now := time.Now()
	r.closed[token] = struct{}{}
	r.closedOrder = append(r.closedOrder, closedToken{token, now})

	drop := 0
	for drop < len(r.closedOrder) {
		oldest := r.closedOrder[drop]
		if len(r.closedOrder)-drop <= closedTokenLimit && now.Sub(oldest.at) < closedTokenTTL {
			break
		}
		delete(r.closed, oldest.token)
		drop++
	}
	r.closedOrder = r.closedOrder[drop:]
}

// Serve handles one SSH shell from login to teardown: it attaches to the
// device named by the login, or pairs a new one first.
func (r *Registry) Serve(ctx context.Context, sh Shell) error {
	pump := startInputPump(sh)
	defer pump.close()

	if tok, err := auth.ParsePairingToken(sh.User()); err == nil {
		if c, ok := r.Lookup(tok); ok {
			pump.pair()
			return c.attach(ctx, sh, pump.pr)
		}
	}

	c, err := r.awaitDevice(ctx, sh, pump)
	if err != nil {
		sh.Write(farewell(reason(err)))
		return err
	}
	pump.pair()
	return c.attach(ctx, sh, pump.pr)
}

func (r *Registry) awaitDevice(ctx context.Context, sh Shell, pump *inputPump) (*Connection, error) {
	token := auth.NewPairingToken()
	p := &pairing{ready: make(chan *Connection, 1)}
	r.mu.Lock()
	r.waiting[token] = p
	r.mu.Unlock()

	log := r.log.With("token", token, "user", sh.User())
	log.Info("waiting for device")
	if _, err := io.WriteString(sh, r.banner(token)); err != nil {
		r.retire(token, p)
		return nil, fmt.Errorf("%w: %w", ErrShellClosed, err)
	}

	timer := time.NewTimer(r.opts.PairingTimeout)
	defer timer.Stop()

	var err error
	outcome := outcomeCancelled
	select {
	case c := <-p.ready:
		return c, nil
	case <-timer.C:
		err, outcome = ErrPairingTimeout, outcomeTimeout
	case <-pump.cancelled:
		err = ErrPairingCancelled
	case <-ctx.Done():
		err = context.Cause(ctx)
	}

	// A device may have claimed the token while we were giving up.
	if c, claimed := r.retire(token, p); claimed {
		return c, nil
	}
	r.metrics.pairing(outcome)
	log.Info("pairing failed", "err", err)
	return nil, err
}

// retire withdraws a waiting token. If a device already claimed it, the
// claiming connection is returned instead.
func (r *Registry) retire(token string, p *pairing) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting[token] == p {
		delete(r.waiting, token)
		r.markClosed(token)
		return nil, false
	}
	select {
	case c := <-p.ready:
		return c, true
	default:
		return nil, false
	}
}

func (r *Registry) banner(token string) string {
	return "\r\n" + "\x1b[1m" + "Run this command on your device to connect:\r\n" +
		terminal.ResetAttributes + "    wget run " + r.opts.PublicURL + "/client " + token + "\r\n"
}
