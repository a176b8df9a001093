package imapmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Session is the subset of an IMAP connection the adapter drives. The
// go-imap client satisfies it; tests substitute fakes.
type Session interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidCopy(seqset *imap.SeqSet, dest string) error
	Expunge(ch chan uint32) error
	Logout() error
}

var _ Session = (*client.Client)(nil)

// DialFunc establishes a fresh authenticated IMAP session.
type DialFunc func(ctx context.Context, host string, port int, username, password string, useTLS bool) (Session, error)

// Dial connects over TCP (TLS when requested) and logs in.
func Dial(ctx context.Context, host string, port int, username, password string, useTLS bool) (Session, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var c *client.Client
	var err error
	if useTLS {
		var conn *tls.Conn
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, nil)
		if err == nil {
			c, err = client.New(conn)
			if err != nil {
				conn.Close()
			}
		}
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := c.Login(username, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login as %s: %w", username, err)
	}
	return c, nil
}

const (
	defaultIdleTTL     = 5 * time.Minute
	defaultSweepPeriod = time.Minute
)

type poolEntry struct {
	session  Session
	lastUsed time.Time
	inUse    bool
}

// Lease is a checked-out session. Pooled leases go back to the pool on
// release; overflow leases (opened while the pooled entry was busy) are
// closed instead. A lease is used by one goroutine at a time.
type Lease struct {
	Session
	key    string
	pooled bool
	closed bool
}

// Pool caches live IMAP sessions keyed by host:port:username so
// back-to-back operations on the same mailbox reuse one login. Acquire
// never blocks: a busy key gets an extra throwaway session.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry

	dial        DialFunc
	now         func() time.Time
	idleTTL     time.Duration
	sweepPeriod time.Duration
	logger      *slog.Logger

	stopCh  chan struct{}
	stopped bool
}

// NewPool creates a pool using the given dialer. Call Start to run the
// idle-eviction sweep and CloseAll at shutdown.
func NewPool(dial DialFunc, logger *slog.Logger) *Pool {
	return &Pool{
		entries:     make(map[string]*poolEntry),
		dial:        dial,
		now:         time.Now,
		idleTTL:     defaultIdleTTL,
		sweepPeriod: defaultSweepPeriod,
		logger:      logger.With("component", "imap-pool"),
		stopCh:      make(chan struct{}),
	}
}

// SetTimings overrides the idle TTL and sweep period. Call before Start.
func (p *Pool) SetTimings(idleTTL, sweepPeriod time.Duration) {
	if idleTTL > 0 {
		p.idleTTL = idleTTL
	}
	if sweepPeriod > 0 {
		p.sweepPeriod = sweepPeriod
	}
}

func poolKey(host string, port int, username string) string {
	return fmt.Sprintf("%s:%d:%s", host, port, username)
}

// Acquire returns a session for the credentials, reusing an idle pooled
// one when available. If the pooled session is currently in use, a fresh
// unpooled session is opened rather than waiting for it.
func (p *Pool) Acquire(ctx context.Context, host string, port int, username, password string, useTLS bool) (*Lease, error) {
	key := poolKey(host, port, username)

	p.mu.Lock()
	if e, ok := p.entries[key]; ok && !e.inUse {
		e.inUse = true
		p.mu.Unlock()
		return &Lease{Session: e.session, key: key, pooled: true}, nil
	}
	busy := false
	if e, ok := p.entries[key]; ok && e.inUse {
		busy = true
	}
	p.mu.Unlock()

	session, err := p.dial(ctx, host, port, username, password, useTLS)
	if err != nil {
		return nil, err
	}

	if busy {
		return &Lease{Session: session, key: key, pooled: false}, nil
	}

	p.mu.Lock()
	// Another Acquire may have raced us into the slot; in that case this
	// session stays unpooled.
	if _, ok := p.entries[key]; ok {
		p.mu.Unlock()
		return &Lease{Session: session, key: key, pooled: false}, nil
	}
	p.entries[key] = &poolEntry{session: session, lastUsed: p.now(), inUse: true}
	p.mu.Unlock()

	return &Lease{Session: session, key: key, pooled: true}, nil
}

// Release returns a pooled lease to the pool without closing the
// underlying session. Unpooled leases are logged out. Releasing an
// already-discarded lease is a no-op.
func (p *Pool) Release(lease *Lease) {
	if lease == nil || lease.closed {
		return
	}
	if !lease.pooled {
		lease.closed = true
		if err := lease.Session.Logout(); err != nil {
			p.logger.Debug("failed to close overflow session", "key", lease.key, "error", err)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[lease.key]; ok && e.session == lease.Session {
		e.inUse = false
		e.lastUsed = p.now()
	}
}

// Discard drops a lease whose session is broken, closing it and removing
// the pooled entry so the next Acquire dials fresh.
func (p *Pool) Discard(lease *Lease) {
	if lease == nil || lease.closed {
		return
	}
	lease.closed = true
	if lease.pooled {
		p.mu.Lock()
		if e, ok := p.entries[lease.key]; ok && e.session == lease.Session {
			delete(p.entries, lease.key)
		}
		p.mu.Unlock()
	}
	if err := lease.Session.Logout(); err != nil {
		p.logger.Debug("failed to close discarded session", "key", lease.key, "error", err)
	}
}

// Start runs the periodic idle-eviction sweep until CloseAll.
func (p *Pool) Start() {
	go func() {
		ticker := time.NewTicker(p.sweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.evictIdle()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// evictIdle closes and removes idle sessions past the TTL. Close failures
// are logged; cleanup is best-effort.
func (p *Pool) evictIdle() {
	cutoff := p.now().Add(-p.idleTTL)

	p.mu.Lock()
	var victims []*poolEntry
	for key, e := range p.entries {
		if !e.inUse && e.lastUsed.Before(cutoff) {
			victims = append(victims, e)
			delete(p.entries, key)
		}
	}
	p.mu.Unlock()

	for _, e := range victims {
		if err := e.session.Logout(); err != nil {
			p.logger.Warn("failed to close idle session", "error", err)
		}
	}
	if len(victims) > 0 {
		p.logger.Debug("evicted idle sessions", "count", len(victims))
	}
}

// CloseAll stops the sweep and forcibly closes every tracked session.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	for key, e := range entries {
		if err := e.session.Logout(); err != nil {
			p.logger.Debug("failed to close session at shutdown", "key", key, "error", err)
		}
	}
}

// Size returns the number of tracked sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
