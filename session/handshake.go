package session

import (
	"fmt"
	"time"

	"github.com/kcenon/messaging-fabric/core/aead"
	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/messages"
)

// clientHandshake sends request_connection and waits (via the normal
// dispatch path) for confirm_connection, per spec.md §4.3 "Handshake
// (client side)".
func (s *Session) clientHandshake() {
	req := container.New(container.Header{
		MessageType: messages.TypeRequestConnection,
		SourceID:    s.cfg.SelfID,
		SourceSubID: s.subID,
	})
	req.Set(messages.FieldSessionType, uint8(s.cfg.Type))
	req.Set(messages.FieldBridgeMode, s.cfg.BridgeLine)
	req.Set(messages.FieldAutoEcho, s.cfg.AutoEcho)
	req.Set(messages.FieldAutoEchoIntervalSecs, s.cfg.AutoEchoIntervalSecs)
	req.Set(messages.FieldConnectionKey, s.cfg.ConnectionKey)
	req.Set(messages.FieldSnippingTargets, s.cfg.Filters.SnippingTargets)

	s.pipe.SendMessage(req)
}

// handleRequestConnection is invoked by dispatchMessage when a
// request_connection arrives on a server-side waiting session (spec.md
// §4.3 "Handshake (server side)").
func (s *Session) handleRequestConnection(c *container.Container) {
	peerID := c.Header.SourceID
	peerSubID := c.Header.SourceSubID

	sessionTypeRaw, _ := c.Get(messages.FieldSessionType)
	bridgeMode, _ := c.GetBool(messages.FieldBridgeMode)
	autoEcho, _ := c.GetBool(messages.FieldAutoEcho)
	connectionKey, _ := c.GetString(messages.FieldConnectionKey)
	peerSnipping, _ := c.ValueArray(messages.FieldSnippingTargets)

	sessionType := decodeSessionType(sessionTypeRaw)

	if reason := s.rejectReason(peerID, sessionType, connectionKey); reason != "" {
		s.sendConfirm(false, reason, nil, nil, nil)
		s.Destroy(fmt.Errorf("session: rejected peer %q: %s", peerID, reason))
		return
	}

	// Intersect the peer's snipping targets with our own
	// ignore_snipping_targets, dropping matches (spec.md §4.3).
	kept := make([]string, 0, len(peerSnipping))
	for _, t := range peerSnipping {
		if !contains(s.filters.IgnoreSnippingTargets, t) {
			kept = append(kept, t)
		}
	}

	var key, iv []byte
	if s.cfg.EncryptMode {
		var err error
		key, iv, err = aead.CreateKey()
		if err != nil {
			s.sendConfirm(false, "key generation failed", nil, nil, nil)
			s.Destroy(err)
			return
		}
	}

	s.mu.Lock()
	s.peerID = peerID
	s.peerSubID = peerSubID
	s.filters.SnippingTargets = kept
	s.cfg.Type = sessionType
	// bridge_mode is negotiated by the peer in request_connection (spec.md
	// §4.3); the server-side session for this connection adopts it so
	// the router's fan-out through this session honors it (spec.md §9's
	// "used by relays" glossary entry).
	s.bridge = s.bridge || bridgeMode
	s.mu.Unlock()
	_ = autoEcho

	s.installKeyIV(key, iv)
	s.setCondition(Confirmed)
	s.sendConfirm(true, "", key, iv, kept)
	s.fireConfirmed()

	if s.cfg.AutoEcho {
		s.Go(s.autoEchoLoop)
	}
}

func decodeSessionType(v interface{}) messages.SessionType {
	switch t := v.(type) {
	case uint8:
		return messages.SessionType(t)
	case uint64:
		return messages.SessionType(t)
	case int64:
		return messages.SessionType(t)
	case float64:
		return messages.SessionType(t)
	default:
		return 0
	}
}

// rejectReason evaluates the server-side policy checks of spec.md §4.3
// step 2, returning a non-empty human reason if the handshake should be
// rejected.
func (s *Session) rejectReason(peerID string, sessionType messages.SessionType, connectionKey string) string {
	if len(s.cfg.PossibleSessionTypes) > 0 {
		allowed := false
		for _, t := range s.cfg.PossibleSessionTypes {
			if t == sessionType {
				allowed = true
				break
			}
		}
		if !allowed {
			return "unsupported session type"
		}
	}
	if peerID == s.cfg.SelfID {
		return "peer id matches server id"
	}
	if contains(s.filters.IgnoreTargetIDs, peerID) {
		return "ignored this line = \"peer id is ignored\""
	}
	if len(s.filters.AcceptableTargetIDs) > 0 && !contains(s.filters.AcceptableTargetIDs, peerID) {
		return "peer id not in acceptable_target_ids"
	}
	if s.cfg.KillCode {
		return "kill code set"
	}
	if connectionKey != s.cfg.ConnectionKey {
		return "ignored this line = \"unknown connection key\""
	}
	return ""
}

func (s *Session) sendConfirm(confirm bool, reason string, key, iv []byte, snipping []string) {
	resp := container.New(container.Header{
		MessageType: messages.TypeConfirmConnection,
		SourceID:    s.cfg.SelfID,
		SourceSubID: s.subID,
		TargetID:    s.peerID,
		TargetSubID: s.peerSubID,
	})
	resp.Set(messages.FieldConfirm, confirm)
	if reason != "" {
		resp.Set(messages.FieldReason, reason)
	}
	if confirm {
		resp.Set(messages.FieldKey, string(key))
		resp.Set(messages.FieldIV, string(iv))
		resp.Set(messages.FieldEncryptMode, s.cfg.EncryptMode)
		resp.Set(messages.FieldSnippingTargets, snipping)
	}
	s.pipe.SendMessage(resp)
}

// handleConfirmConnection is invoked client-side when confirm_connection
// arrives in response to our request_connection.
func (s *Session) handleConfirmConnection(c *container.Container) {
	confirm, _ := c.GetBool(messages.FieldConfirm)
	if !confirm {
		reason, _ := c.GetString(messages.FieldReason)
		s.Destroy(fmt.Errorf("session: connection rejected: %s", reason))
		return
	}

	encryptMode, _ := c.GetBool(messages.FieldEncryptMode)
	keyStr, _ := c.GetString(messages.FieldKey)
	ivStr, _ := c.GetString(messages.FieldIV)
	snipping, _ := c.ValueArray(messages.FieldSnippingTargets)

	s.mu.Lock()
	s.peerID = c.Header.SourceID
	s.peerSubID = c.Header.SourceSubID
	s.filters.SnippingTargets = snipping
	s.mu.Unlock()

	if encryptMode && keyStr != "" {
		s.installKeyIV([]byte(keyStr), []byte(ivStr))
	}

	s.setCondition(Confirmed)
	s.fireConfirmed()

	if s.cfg.AutoEcho {
		s.Go(s.autoEchoLoop)
	}
}

func (s *Session) autoEchoLoop() {
	interval := time.Duration(s.cfg.AutoEchoIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.HaltCh():
			return
		case <-ticker.C:
			s.sendEcho()
		}
	}
}
