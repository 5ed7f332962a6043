// Package fabricserver implements the server half of spec.md §4.4: a
// listener that accepts many peers, a session registry, type-filtered
// fan-out routing, broadcast_mode, and message_sending_response
// acknowledgment synthesis.
//
// Grounded on server/cborplugin/client.go's Start/reaper halt-on-exit
// idiom (adapted here to halt-on-listener-close) and
// server/internal/decoy/decoy.go's worker-embedding struct shape
// (worker.Worker + sync.Mutex + a *logging.Logger field).
package fabricserver

import (
	"fmt"
	"net"
	"sync"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/wire"
	"github.com/kcenon/messaging-fabric/core/worker"
	"github.com/kcenon/messaging-fabric/messages"
	"github.com/kcenon/messaging-fabric/session"
)

// Callbacks are the application notification hooks for server-observed
// events, invoked asynchronously per spec.md §7.
type Callbacks struct {
	OnSessionStateChange func(s *session.Session, confirmed bool, err error)
	OnMessage            func(s *session.Session, c *container.Container)
	OnFile               func(s *session.Session, indicationID, targetID, targetSubID, targetPath string)
	OnBinary             func(s *session.Session, sourceID, sourceSubID, targetID, targetSubID string, payload []byte)
	OnProtoError         func(s *session.Session, err error)
}

// Config carries the server-side option set of spec.md §6.
type Config struct {
	SelfID        string
	ConnectionKey string

	SessionLimitCount     int
	PossibleSessionTypes  []messages.SessionType
	AcceptableTargetIDs   []string
	IgnoreTargetIDs       []string
	IgnoreSnippingTargets []string

	EncryptMode       bool
	CompressMode      bool
	CompressBlockSize int

	DropConnectionTimeSec uint16
	UseMessageResponse    bool
	BroadcastMode         bool

	HighPriority   int
	NormalPriority int
	LowPriority    int

	StartCodeValue byte
	EndCodeValue   byte

	Callbacks Callbacks
	Log       *logging.Logger
}

// Server is the accept + routing half of the fabric.
type Server struct {
	worker.Worker

	cfg Config
	ln  net.Listener
	log *logging.Logger

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
}

// New constructs a Server. Start must be called to begin accepting.
func New(cfg Config) *Server {
	if cfg.CompressBlockSize == 0 {
		cfg.CompressBlockSize = 1024
	}
	if cfg.DropConnectionTimeSec == 0 {
		cfg.DropConnectionTimeSec = 5
	}
	return &Server{
		cfg:      cfg,
		log:      cfg.Log,
		sessions: make(map[*session.Session]struct{}),
	}
}

// Start listens on addr and launches the accept loop. Calling Start again
// after a prior Start implicitly Stops the prior instance (spec.md §8).
func (srv *Server) Start(addr string) error {
	if srv.ln != nil {
		srv.Stop()
		srv.Worker = worker.Worker{}
		srv.sessions = make(map[*session.Session]struct{})
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("fabricserver: listen: %w", err)
	}
	srv.ln = ln
	srv.Go(srv.acceptLoop)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (srv *Server) Addr() net.Addr {
	if srv.ln == nil {
		return nil
	}
	return srv.ln.Addr()
}

// acceptLoop is the reactor's accept goroutine: sessions are added to the
// registry only here; they are removed from the session's disconnect
// notification, which runs on its own goroutine, so every registry access
// holds mu. The accept callback is idempotently
// re-armed after each accept, including the error path (spec.md §4.4) —
// an accept error never stops the listener unless it was closed by Stop.
func (srv *Server) acceptLoop() {
	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			select {
			case <-srv.HaltCh():
				return
			default:
			}
			if srv.log != nil {
				srv.log.Warningf("fabricserver: accept error: %v", err)
			}
			continue
		}

		srv.mu.Lock()
		count := len(srv.sessions)
		srv.mu.Unlock()
		if srv.cfg.SessionLimitCount > 0 && count >= srv.cfg.SessionLimitCount {
			conn.Close()
			continue
		}

		srv.acceptOne(conn)
	}
}

func (srv *Server) acceptOne(conn net.Conn) {
	pool := worker.NewPool(worker.Counts{
		High:   srv.cfg.HighPriority,
		Normal: srv.cfg.NormalPriority,
		Low:    srv.cfg.LowPriority,
	})

	var sess *session.Session
	sess = session.New(conn, conn.LocalAddr().String(), session.Config{
		SelfID:                srv.cfg.SelfID,
		Role:                  session.RoleServer,
		EncryptMode:           srv.cfg.EncryptMode,
		CompressMode:          srv.cfg.CompressMode,
		CompressBlockSize:     srv.cfg.CompressBlockSize,
		ConnectionKey:         srv.cfg.ConnectionKey,
		DropConnectionTimeSec: srv.cfg.DropConnectionTimeSec,
		PossibleSessionTypes:  srv.cfg.PossibleSessionTypes,
		Filters: session.Filters{
			IgnoreTargetIDs:       srv.cfg.IgnoreTargetIDs,
			IgnoreSnippingTargets: srv.cfg.IgnoreSnippingTargets,
			AcceptableTargetIDs:   srv.cfg.AcceptableTargetIDs,
		},
		Sentinels: srv.sentinels(),
		Pool:      pool,
		Log:       srv.log,
		Callbacks: session.Callbacks{
			OnStateChange: func(s *session.Session, confirmed bool, err error) {
				if !confirmed {
					srv.removeSession(s)
				}
				if srv.cfg.Callbacks.OnSessionStateChange != nil {
					srv.cfg.Callbacks.OnSessionStateChange(s, confirmed, err)
				}
			},
			OnMessage: func(s *session.Session, c *container.Container) {
				srv.routeMessage(s, c)
			},
			OnFile: func(s *session.Session, indicationID, targetID, targetSubID, targetPath string) {
				if srv.cfg.Callbacks.OnFile != nil {
					srv.cfg.Callbacks.OnFile(s, indicationID, targetID, targetSubID, targetPath)
				}
			},
			OnBinary: func(s *session.Session, sourceID, sourceSubID, targetID, targetSubID string, payload []byte) {
				if srv.cfg.Callbacks.OnBinary != nil {
					srv.cfg.Callbacks.OnBinary(s, sourceID, sourceSubID, targetID, targetSubID, payload)
				}
			},
			OnProtoError: func(s *session.Session, err error) {
				if srv.cfg.Callbacks.OnProtoError != nil {
					srv.cfg.Callbacks.OnProtoError(s, err)
				}
			},
		},
	})

	srv.mu.Lock()
	srv.sessions[sess] = struct{}{}
	srv.mu.Unlock()

	sess.Start()
}

func (srv *Server) sentinels() wire.Sentinels {
	if srv.cfg.StartCodeValue == 0 && srv.cfg.EndCodeValue == 0 {
		return wire.DefaultSentinels()
	}
	return wire.Sentinels{Start: srv.cfg.StartCodeValue, End: srv.cfg.EndCodeValue}
}

func (srv *Server) removeSession(s *session.Session) {
	srv.mu.Lock()
	delete(srv.sessions, s)
	srv.mu.Unlock()
}

// snapshot returns a point-in-time copy of the registered sessions (of any
// condition; callers filter on Condition themselves), taken
// under the registry mutex, so fan-out never holds the lock while calling
// out to a session's send path (spec.md §5).
func (srv *Server) snapshot() []*session.Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]*session.Session, 0, len(srv.sessions))
	for s := range srv.sessions {
		out = append(out, s)
	}
	return out
}

// Stop halts the listener, drains the worker pool of every session, and
// destroys each session (spec.md §5's cancellation model). Stop is safe
// to call more than once.
func (srv *Server) Stop() {
	if srv.ln != nil {
		srv.ln.Close()
	}
	srv.Halt()
	for _, s := range srv.snapshot() {
		s.Destroy(nil)
	}
}
