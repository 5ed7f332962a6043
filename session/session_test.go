package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kcenon/messaging-fabric/messages"
)

type harness struct {
	mu        sync.Mutex
	confirmed bool
	rejected  bool
	reason    error
}

func (h *harness) onState(s *Session, confirmed bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if confirmed {
		h.confirmed = true
		return
	}
	h.rejected = true
	h.reason = err
}

func (h *harness) isConfirmed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.confirmed
}

func (h *harness) isRejected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejected
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.FailNow(t, "condition never became true")
}

func newPair(t *testing.T, serverCfg, clientCfg Config) (server, client *Session, sh, ch *harness) {
	t.Helper()
	a, b := net.Pipe()

	sh = &harness{}
	ch = &harness{}
	serverCfg.Callbacks.OnStateChange = sh.onState
	clientCfg.Callbacks.OnStateChange = ch.onState
	serverCfg.Role = RoleServer
	clientCfg.Role = RoleClient

	server = New(a, "server:0", serverCfg)
	client = New(b, "client:0", clientCfg)
	server.Start()
	client.Start()
	return server, client, sh, ch
}

func TestHandshakeConfirmsBothSides(t *testing.T) {
	server, client, sh, ch := newPair(t, Config{
		SelfID:                "srv",
		Type:                  messages.SessionTypeMessage,
		DropConnectionTimeSec: 5,
	}, Config{
		SelfID: "cli",
		Type:   messages.SessionTypeMessage,
	})
	defer server.Destroy(nil)
	defer client.Destroy(nil)

	waitFor(t, sh.isConfirmed)
	waitFor(t, ch.isConfirmed)

	require.Equal(t, Confirmed, server.Condition())
	require.Equal(t, Confirmed, client.Condition())

	peerID, _ := server.PeerID()
	require.Equal(t, "cli", peerID)
}

func TestHandshakeRejectsWrongConnectionKey(t *testing.T) {
	server, client, sh, _ := newPair(t, Config{
		SelfID:                "srv",
		Type:                  messages.SessionTypeMessage,
		ConnectionKey:         "secret",
		DropConnectionTimeSec: 5,
	}, Config{
		SelfID:        "cli",
		Type:          messages.SessionTypeMessage,
		ConnectionKey: "wrong",
	})
	defer server.Destroy(nil)
	defer client.Destroy(nil)

	waitFor(t, sh.isRejected)
	require.Equal(t, Expired, server.Condition())
}

func TestDestroyIsIdempotent(t *testing.T) {
	server, client, sh, _ := newPair(t, Config{
		SelfID: "srv",
		Type:   messages.SessionTypeMessage,
	}, Config{
		SelfID: "cli",
		Type:   messages.SessionTypeMessage,
	})
	defer client.Destroy(nil)
	waitFor(t, sh.isConfirmed)

	server.Destroy(nil)
	server.Destroy(nil)
	server.Destroy(nil)
	require.Equal(t, Expired, server.Condition())
}

func TestSendBinaryRefusedForUnknownTarget(t *testing.T) {
	server, client, sh, ch := newPair(t, Config{
		SelfID: "srv",
		Type:   messages.SessionTypeMessage,
	}, Config{
		SelfID: "cli",
		Type:   messages.SessionTypeMessage,
	})
	defer server.Destroy(nil)
	defer client.Destroy(nil)
	waitFor(t, sh.isConfirmed)
	waitFor(t, ch.isConfirmed)

	err := server.SendBinary("not-cli", "", []byte{1})
	require.Error(t, err)
}

func TestSendBinaryAllowedForBoundPeer(t *testing.T) {
	server, client, sh, ch := newPair(t, Config{
		SelfID: "srv",
		Type:   messages.SessionTypeBinary,
	}, Config{
		SelfID: "cli",
		Type:   messages.SessionTypeBinary,
	})
	defer server.Destroy(nil)
	defer client.Destroy(nil)
	waitFor(t, sh.isConfirmed)
	waitFor(t, ch.isConfirmed)

	peerID, peerSubID := server.PeerID()
	err := server.SendBinary(peerID, peerSubID, []byte{1, 2, 3})
	require.NoError(t, err)
}
