// Package session implements the per-connection session state machine of
// spec.md §4.3: handshake, lifetime, auto-echo, drop-timer, and the
// per-session send filters. It is grounded in client2/connection.go's
// onWireConn main loop (a select over halt/read/write/timer channels
// driving a small explicit state) and in map/client/stream.go's
// StreamOpen/StreamClosing/StreamClosed three-state enum, which is the
// direct precedent for Condition below.
package session

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/wire"
	"github.com/kcenon/messaging-fabric/core/worker"
	"github.com/kcenon/messaging-fabric/messages"
	"github.com/kcenon/messaging-fabric/pipeline"
)

// Condition is the session's lifecycle state (spec.md §3/§4.3).
type Condition int32

const (
	Waiting Condition = iota
	Confirmed
	Expired
)

func (c Condition) String() string {
	switch c {
	case Waiting:
		return "waiting"
	case Confirmed:
		return "confirmed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Role distinguishes which side of the handshake a Session plays.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Filters are the per-session send/accept filters of spec.md §3.
type Filters struct {
	SnippingTargets       []string
	IgnoreTargetIDs       []string
	IgnoreSnippingTargets []string
	AcceptableTargetIDs   []string
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// Callbacks are the application notification hooks spec.md §7 requires to
// be invoked asynchronously, so a misbehaving callback can never poison a
// pipeline worker.
type Callbacks struct {
	OnStateChange func(s *Session, confirmed bool, err error)
	OnMessage     func(s *Session, c *container.Container)
	OnFile        func(s *Session, indicationID, targetID, targetSubID, targetPath string)
	OnBinary      func(s *Session, sourceID, sourceSubID, targetID, targetSubID string, payload []byte)
	OnProtoError  func(s *Session, err error)
}

// Config carries the negotiable per-session settings of spec.md §6.
type Config struct {
	SelfID    string
	Role      Role
	Type      messages.SessionType
	BridgeLine bool

	EncryptMode       bool
	CompressMode      bool
	CompressBlockSize int

	ConnectionKey string

	AutoEcho              bool
	AutoEchoIntervalSecs  uint16
	DropConnectionTimeSec uint16

	Filters Filters

	PossibleSessionTypes []messages.SessionType // server-side accept policy
	KillCode             bool

	Sentinels wire.Sentinels

	Callbacks Callbacks
	Pool      *worker.Pool
	Log       *logging.Logger
}

// Session is one accepted or dialed connection and its negotiated state.
type Session struct {
	worker.Worker

	cfg  Config
	conn net.Conn

	enc *wire.Encoder
	dec *wire.Decoder

	sendMu sync.Mutex

	rawCondition int32 // atomic Condition; see Condition()/setCondition

	mu        sync.Mutex
	peerID    string
	peerSubID string
	subID     string
	key       []byte
	iv        []byte
	filters   Filters
	bridge    bool
	killed    bool

	notifiedDisconnect int32 // atomic bool, guards single-fire disconnect

	pipe *pipeline.Pipeline

	log *logging.Logger
}

// New constructs a Session bound to conn. subID is the "<ip>:<port>" of
// the local endpoint as bound on this socket (spec.md §3).
func New(conn net.Conn, subID string, cfg Config) *Session {
	if cfg.Sentinels == (wire.Sentinels{}) {
		cfg.Sentinels = wire.DefaultSentinels()
	}
	if cfg.CompressBlockSize == 0 {
		cfg.CompressBlockSize = 1024
	}
	if cfg.DropConnectionTimeSec == 0 {
		cfg.DropConnectionTimeSec = 5
	}

	s := &Session{
		cfg:     cfg,
		conn:    conn,
		subID:   subID,
		filters: cfg.Filters,
		bridge:  cfg.BridgeLine,
		log:     cfg.Log,
	}
	s.rawCondition = int32(Waiting)
	s.enc = wire.NewEncoder(conn, cfg.Sentinels, cfg.CompressBlockSize)
	s.dec = wire.NewDecoder(conn, cfg.Sentinels, 4096)
	s.pipe = pipeline.New(pipeline.Config{
		Pool:              cfg.Pool,
		EncryptMode:       func() bool { return cfg.EncryptMode && s.Condition() == Confirmed },
		CompressMode:      func() bool { return cfg.CompressMode },
		CompressBlockSize: cfg.CompressBlockSize,
		KeyIV:             s.keyIV,
		SendFrame:         s.sendFrame,
		OnMessage:         s.dispatchMessage,
		OnFile:            s.dispatchFile,
		OnBinary:          s.dispatchBinary,
		OnProtoError:      s.reportProtoError,
	})
	return s
}

func (s *Session) keyIV() (key, iv []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.iv
}

// Condition returns the current state, safe for concurrent use.
func (s *Session) Condition() Condition {
	return Condition(atomic.LoadInt32(&s.rawCondition))
}

func (s *Session) setCondition(c Condition) {
	atomic.StoreInt32(&s.rawCondition, int32(c))
}

// PeerID returns the peer identity learned during handshake.
func (s *Session) PeerID() (id, subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID, s.peerSubID
}

// SelfID returns this endpoint's own (id, sub_id).
func (s *Session) SelfID() (id, subID string) {
	return s.cfg.SelfID, s.subID
}

// SessionType returns the negotiated session_type (spec.md §3), used by
// the server's fan-out to apply a type filter (spec.md §4.4).
func (s *Session) SessionType() messages.SessionType {
	return s.cfg.Type
}

func (s *Session) fireDisconnect(err error) {
	if !atomic.CompareAndSwapInt32(&s.notifiedDisconnect, 0, 1) {
		return
	}
	if s.cfg.Callbacks.OnStateChange != nil {
		go s.cfg.Callbacks.OnStateChange(s, false, err)
	}
}

func (s *Session) fireConfirmed() {
	if s.cfg.Callbacks.OnStateChange != nil {
		go s.cfg.Callbacks.OnStateChange(s, true, nil)
	}
}

func (s *Session) reportProtoError(err error) {
	if s.log != nil {
		s.log.Warningf("protocol error on session %s: %v", s.subID, err)
	}
	if s.cfg.Callbacks.OnProtoError != nil {
		go s.cfg.Callbacks.OnProtoError(s, err)
	}
}

func (s *Session) dispatchMessage(c *container.Container) {
	switch c.Header.MessageType {
	case messages.TypeRequestConnection:
		s.handleRequestConnection(c)
		return
	case messages.TypeConfirmConnection:
		s.handleConfirmConnection(c)
		return
	}

	if s.cfg.Type == messages.SessionTypeBinary {
		// spec.md §3 invariant: a binary_line session must refuse
		// message-shaped payloads.
		s.reportProtoError(fmt.Errorf("session: message-shaped payload on binary_line session"))
		return
	}

	if s.Condition() == Waiting {
		// spec.md §3 invariant: a waiting session must not accept any
		// non-handshake message.
		s.reportProtoError(fmt.Errorf("session: non-handshake message while waiting"))
		return
	}

	if c.Header.MessageType == messages.TypeEcho {
		s.handleEcho(c)
		return
	}
	if s.cfg.Callbacks.OnMessage != nil {
		go s.cfg.Callbacks.OnMessage(s, c)
	}
}

func (s *Session) dispatchFile(indicationID, targetID, targetSubID, targetPath string) {
	if s.cfg.Callbacks.OnFile != nil {
		go s.cfg.Callbacks.OnFile(s, indicationID, targetID, targetSubID, targetPath)
	}
}

func (s *Session) dispatchBinary(sourceID, sourceSubID, targetID, targetSubID string, payload []byte) {
	if s.cfg.Type != messages.SessionTypeBinary {
		// spec.md §3 invariant: a message_line or file_line session must
		// refuse binary-shaped payloads.
		s.reportProtoError(fmt.Errorf("session: binary-shaped payload on non-binary_line session"))
		return
	}
	if s.cfg.Callbacks.OnBinary != nil {
		go s.cfg.Callbacks.OnBinary(s, sourceID, sourceSubID, targetID, targetSubID, payload)
	}
}

// sendFrame is the pipeline's send-terminal stage: it writes one frame to
// the wire. A send failure is fatal (spec.md §4.1) and expires the
// session.
func (s *Session) sendFrame(mode wire.Mode, payload []byte) {
	s.sendMu.Lock()
	err := s.enc.Encode(mode, payload)
	s.sendMu.Unlock()
	if err != nil {
		if s.log != nil {
			s.log.Errorf("send error on session %s: %v", s.subID, err)
		}
		s.Destroy(err)
	}
}

// Start arms the drop timer (server side, or any session awaiting
// handshake completion) and launches the read loop.
func (s *Session) Start() {
	s.Go(s.readLoop)
	s.Go(s.dropTimer)
	if s.cfg.Role == RoleClient {
		s.Go(s.clientHandshake)
	}
}

func (s *Session) dropTimer() {
	timer := time.NewTimer(time.Duration(s.cfg.DropConnectionTimeSec) * time.Second)
	defer timer.Stop()
	select {
	case <-s.HaltCh():
	case <-timer.C:
		if s.Condition() == Waiting {
			s.Destroy(fmt.Errorf("session: drop_connection_time elapsed before handshake"))
		}
	}
}

func (s *Session) readLoop() {
	for {
		mode, payload, err := s.dec.ReadFrame()
		if err != nil {
			if pe, ok := err.(*wire.ProtocolError); ok {
				s.reportProtoError(pe)
				continue
			}
			s.Destroy(err)
			return
		}

		select {
		case <-s.HaltCh():
			return
		default:
		}

		if err := s.pipe.HandleInbound(mode, payload); err != nil {
			s.reportProtoError(err)
		}
	}
}

// Destroy transitions the session to expired, closes the socket, stops
// the pipeline workers, and fires the disconnect notification exactly
// once (spec.md §3's invariant and §5's Halt() semantics). Destroy is
// idempotent: destroy(destroy(s)) == destroy(s).
//
// Destroy may run on one of the session's own goroutines (readLoop and
// dropTimer both call it directly on an error), so the actual Worker.Halt
// join happens on a detached goroutine rather than inline: joining here
// would deadlock a goroutine waiting on its own completion.
func (s *Session) Destroy(cause error) {
	wasExpired := s.Condition() == Expired
	s.setCondition(Expired)
	s.conn.Close()
	if !wasExpired {
		s.fireDisconnect(cause)
		if s.cfg.Pool != nil {
			go s.cfg.Pool.Stop()
		}
	}
	go s.Halt()
}

// KeyIV returns the negotiated symmetric key material, or nils if the
// session is unencrypted or not yet confirmed (spec.md §3 invariant).
func (s *Session) KeyIV() (key, iv []byte) {
	if !s.cfg.EncryptMode || s.Condition() != Confirmed {
		return nil, nil
	}
	return s.keyIV()
}

// installKeyIV is called once, at confirm time, by the handshake code.
func (s *Session) installKeyIV(key, iv []byte) {
	s.mu.Lock()
	s.key, s.iv = key, iv
	s.mu.Unlock()
}
