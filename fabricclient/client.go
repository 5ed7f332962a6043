// Package fabricclient implements the client dialer half of spec.md §2/§4:
// connect, bind, handshake, and the reconnect boundary.
//
// Grounded almost directly on client2/connection.go's connectWorker /
// doConnect backoff loop and onTCPConn's handshake-then-steady-state
// split — the reuse is in structure (the two-phase connect-then-serve
// split, the halt-aware atomic backoff), not in literal text: every type,
// field, and the command set it serves are rewritten for the
// messaging-fabric domain (no PKI, no Sphinx packets, no consensus
// fetch).
package fabricclient

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/wire"
	"github.com/kcenon/messaging-fabric/core/worker"
	"github.com/kcenon/messaging-fabric/core/xrand"
	"github.com/kcenon/messaging-fabric/messages"
	"github.com/kcenon/messaging-fabric/session"
)

// ErrNotConnected is returned by send operations attempted before the
// handshake has completed.
var ErrNotConnected = fmt.Errorf("fabricclient: not connected")

// Callbacks are the application notification hooks for client-observed
// events, invoked asynchronously per spec.md §7.
type Callbacks struct {
	OnConnect    func(c *Client, connected bool, err error)
	OnMessage    func(c *Client, msg *container.Container)
	OnFile       func(c *Client, indicationID, targetID, targetSubID, targetPath string)
	OnBinary     func(c *Client, sourceID, sourceSubID, targetID, targetSubID string, payload []byte)
	OnProtoError func(c *Client, err error)
}

// Config carries the client-side option set of spec.md §6.
type Config struct {
	SelfID        string
	ConnectionKey string
	Type          messages.SessionType
	BridgeLine    bool

	EncryptMode       bool
	CompressMode      bool
	CompressBlockSize int

	AutoEcho              bool
	AutoEchoIntervalSecs  uint16
	DropConnectionTimeSec uint16

	SnippingTargets       []string
	IgnoreTargetIDs       []string
	IgnoreSnippingTargets []string
	AcceptableTargetIDs   []string

	// Reconnect, when true, re-dials with backoff after any disconnect
	// (spec.md §2's "reconnect boundary"). When false the client reports
	// the disconnect and stops.
	Reconnect bool

	HighPriority   int
	NormalPriority int
	LowPriority    int

	StartCodeValue byte
	EndCodeValue   byte

	Callbacks Callbacks
	Log       *log.Logger
}

// Client is the dialer half of the fabric.
type Client struct {
	worker.Worker

	cfg  Config
	addr string
	log  *log.Logger

	retryDelay int64 // atomic time.Duration, mirrors client2.connection's backoff

	sessPtr atomic.Value // holds *session.Session once connected
}

// New constructs a Client bound to cfg. Dial connects it.
func New(cfg Config) *Client {
	if cfg.CompressBlockSize == 0 {
		cfg.CompressBlockSize = 1024
	}
	if cfg.DropConnectionTimeSec == 0 {
		cfg.DropConnectionTimeSec = 5
	}
	l := cfg.Log
	if l == nil {
		l = log.NewWithOptions(nil, log.Options{ReportTimestamp: true, Prefix: "fabricclient"})
	}
	return &Client{cfg: cfg, log: l}
}

// Dial connects to addr once (Reconnect=false) or launches the reconnect
// worker (Reconnect=true). Dialing again after a prior Dial implicitly
// Stops the prior instance (spec.md §8).
func (c *Client) Dial(addr string) error {
	if c.addr != "" {
		c.Stop()
		c.Worker = worker.Worker{}
	}
	c.addr = addr

	if !c.cfg.Reconnect {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("fabricclient: dial: %w", err)
		}
		c.attach(conn)
		return nil
	}

	c.Go(c.connectWorker)
	return nil
}

const (
	retryIncrement = 500 * time.Millisecond
	maxRetryDelay  = 30 * time.Second
)

// connectWorker mirrors client2.connection's doConnect: dial with
// atomically-tracked backoff, serve until disconnect, then retry.
func (c *Client) connectWorker() {
	for {
		select {
		case <-c.HaltCh():
			return
		case <-time.After(time.Duration(atomic.LoadInt64(&c.retryDelay))):
		}

		conn, err := net.Dial("tcp", c.addr)
		if err != nil {
			c.log.Warnf("fabricclient: dial %s failed: %v", c.addr, err)
			if c.cfg.Callbacks.OnConnect != nil {
				go c.cfg.Callbacks.OnConnect(c, false, err)
			}
			c.backoff()
			continue
		}

		atomic.StoreInt64(&c.retryDelay, 0)
		s := c.attach(conn)
		// Wait for this connection's lifetime to end (the session expires on
		// disconnect, rejection or drop timer); Stop ends it early. Only then
		// join the session's goroutines (readLoop/workers).
		for s.Condition() != session.Expired {
			select {
			case <-c.HaltCh():
				s.Destroy(nil)
			case <-time.After(50 * time.Millisecond):
			}
		}
		s.Halt()
		c.backoff()
	}
}

func (c *Client) backoff() {
	d := atomic.LoadInt64(&c.retryDelay) + int64(retryIncrement) + int64(xrand.NewMath().Intn(int(retryIncrement)))
	if d > int64(maxRetryDelay) {
		d = int64(maxRetryDelay)
	}
	atomic.StoreInt64(&c.retryDelay, d)
}

// attach wraps conn in a new Session, wires callbacks, starts it, and
// installs it as the client's live session.
func (c *Client) attach(conn net.Conn) *session.Session {
	pool := worker.NewPool(worker.Counts{
		High:   c.cfg.HighPriority,
		Normal: c.cfg.NormalPriority,
		Low:    c.cfg.LowPriority,
	})

	s := session.New(conn, conn.LocalAddr().String(), session.Config{
		SelfID:                c.cfg.SelfID,
		Role:                  session.RoleClient,
		Type:                  c.cfg.Type,
		BridgeLine:            c.cfg.BridgeLine,
		EncryptMode:           c.cfg.EncryptMode,
		CompressMode:          c.cfg.CompressMode,
		CompressBlockSize:     c.cfg.CompressBlockSize,
		ConnectionKey:         c.cfg.ConnectionKey,
		AutoEcho:              c.cfg.AutoEcho,
		AutoEchoIntervalSecs:  c.cfg.AutoEchoIntervalSecs,
		DropConnectionTimeSec: c.cfg.DropConnectionTimeSec,
		Filters: session.Filters{
			SnippingTargets:       c.cfg.SnippingTargets,
			IgnoreTargetIDs:       c.cfg.IgnoreTargetIDs,
			IgnoreSnippingTargets: c.cfg.IgnoreSnippingTargets,
			AcceptableTargetIDs:   c.cfg.AcceptableTargetIDs,
		},
		Sentinels: c.sentinels(),
		Pool:      pool,
		Callbacks: session.Callbacks{
			OnStateChange: func(s *session.Session, confirmed bool, err error) {
				if !confirmed {
					c.sessPtr.Store((*session.Session)(nil))
				}
				if c.cfg.Callbacks.OnConnect != nil {
					c.cfg.Callbacks.OnConnect(c, confirmed, err)
				}
			},
			OnMessage: func(s *session.Session, msg *container.Container) {
				if c.cfg.Callbacks.OnMessage != nil {
					c.cfg.Callbacks.OnMessage(c, msg)
				}
			},
			OnFile: func(s *session.Session, indicationID, targetID, targetSubID, targetPath string) {
				if c.cfg.Callbacks.OnFile != nil {
					c.cfg.Callbacks.OnFile(c, indicationID, targetID, targetSubID, targetPath)
				}
			},
			OnBinary: func(s *session.Session, sourceID, sourceSubID, targetID, targetSubID string, payload []byte) {
				if c.cfg.Callbacks.OnBinary != nil {
					c.cfg.Callbacks.OnBinary(c, sourceID, sourceSubID, targetID, targetSubID, payload)
				}
			},
			OnProtoError: func(s *session.Session, err error) {
				if c.cfg.Callbacks.OnProtoError != nil {
					c.cfg.Callbacks.OnProtoError(c, err)
				}
			},
		},
	})

	c.sessPtr.Store(s)
	s.Start()
	return s
}

func (c *Client) sentinels() wire.Sentinels {
	if c.cfg.StartCodeValue == 0 && c.cfg.EndCodeValue == 0 {
		return wire.DefaultSentinels()
	}
	return wire.Sentinels{Start: c.cfg.StartCodeValue, End: c.cfg.EndCodeValue}
}

// Session returns the live session, or nil if not currently connected.
func (c *Client) Session() *session.Session {
	v, _ := c.sessPtr.Load().(*session.Session)
	return v
}

// SendMessage submits a packet-mode container via the live session.
func (c *Client) SendMessage(msg *container.Container) error {
	s := c.Session()
	if s == nil || s.Condition() != session.Confirmed {
		return ErrNotConnected
	}
	return s.SendMessage(msg)
}

// SendBinary submits a binary blob via the live session.
func (c *Client) SendBinary(targetID, targetSubID string, payload []byte) error {
	s := c.Session()
	if s == nil || s.Condition() != session.Confirmed {
		return ErrNotConnected
	}
	return s.SendBinary(targetID, targetSubID, payload)
}

// SendFile submits a single file transfer via the live session.
func (c *Client) SendFile(targetID, targetSubID string, req session.FileRequest) (string, error) {
	s := c.Session()
	if s == nil || s.Condition() != session.Confirmed {
		return "", ErrNotConnected
	}
	return s.SendFile(targetID, targetSubID, req)
}

// SendFiles submits a batch of files via the live session.
func (c *Client) SendFiles(targetID, targetSubID string, reqs []session.FileRequest) ([]string, error) {
	s := c.Session()
	if s == nil || s.Condition() != session.Confirmed {
		return nil, ErrNotConnected
	}
	return s.SendFiles(targetID, targetSubID, reqs)
}

// Stop halts the reconnect worker (if any), closes the live session, and
// drains its workers (spec.md §5).
func (c *Client) Stop() {
	c.Halt()
	if s := c.Session(); s != nil {
		s.Destroy(nil)
	}
}
