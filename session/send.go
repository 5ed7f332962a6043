package session

import (
	"fmt"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/messages"
)

// allowedTarget implements spec.md §4.3's send-filtering rule: a send is
// refused unless targetID matches the session's bound peer id, or bridge
// mode is on, or targetID is one of the peer's (filtered) snipping
// targets. When targetSubID is non-empty it must additionally match the
// peer's sub-id, under the same exceptions.
func (s *Session) allowedTarget(targetID, targetSubID string) bool {
	s.mu.Lock()
	bridge := s.bridge
	peerID := s.peerID
	peerSubID := s.peerSubID
	snipping := s.filters.SnippingTargets
	s.mu.Unlock()

	idOK := targetID == peerID || bridge || contains(snipping, targetID)
	if !idOK {
		return false
	}
	if targetSubID == "" {
		return true
	}
	return targetSubID == peerSubID || bridge || contains(snipping, targetID)
}

// errRefused reports a send-filtering rejection (spec.md §4.3); it never
// reaches the wire, so it is returned to the caller rather than routed
// through the pipeline's protocol-error path.
func errRefused(targetID, targetSubID string) error {
	return fmt.Errorf("session: send refused: target %s/%s not permitted", targetID, targetSubID)
}

// SendMessage submits a packet-mode container for delivery, honoring the
// session's send filters. The header's TargetID/TargetSubID are checked;
// callers build the header themselves (mirroring request_connection's own
// header construction).
func (s *Session) SendMessage(c *container.Container) error {
	if !s.allowedTarget(c.Header.TargetID, c.Header.TargetSubID) {
		return errRefused(c.Header.TargetID, c.Header.TargetSubID)
	}
	s.pipe.SendMessage(c)
	return nil
}

// SendBinary submits a binary blob for delivery to (targetID, targetSubID).
// The sub-id check here compares targetSubID with the session's peer
// sub-id (its target_sub_id) rather than with target_id, correcting the predicate bug noted in spec.md §9/§Open
// Questions (the source compared target_id against target_sub_id, which
// can never match).
func (s *Session) SendBinary(targetID, targetSubID string, payload []byte) error {
	if !s.allowedTarget(targetID, targetSubID) {
		return errRefused(targetID, targetSubID)
	}
	selfID, selfSubID := s.SelfID()
	return s.pipe.SendBinary(selfID, selfSubID, targetID, targetSubID, payload)
}

// FileRequest is one entry of a request_files batch (SPEC_FULL.md's
// Supplemented Features #2: request_file generalized to a batch of
// source/target path pairs under one indication_id per entry).
type FileRequest struct {
	SourcePath string
	TargetPath string
}

// SendFile submits a single file for transfer, returning the
// indication_id that the receiving side's file notification carries.
func (s *Session) SendFile(targetID, targetSubID string, req FileRequest) (string, error) {
	if !s.allowedTarget(targetID, targetSubID) {
		return "", errRefused(targetID, targetSubID)
	}
	selfID, selfSubID := s.SelfID()
	indicationID := messages.NewIndicationID()
	s.pipe.SendFile(indicationID, selfID, selfSubID, targetID, targetSubID, req.SourcePath, req.TargetPath)
	return indicationID, nil
}

// SendFiles submits a batch of files to the same target, one indication_id
// per entry, returning the indication_ids in request order. The send
// filter is checked once for the whole batch; if an entry fails, the ids
// submitted so far are returned with the error and the remaining entries
// are not sent.
func (s *Session) SendFiles(targetID, targetSubID string, reqs []FileRequest) ([]string, error) {
	if !s.allowedTarget(targetID, targetSubID) {
		return nil, errRefused(targetID, targetSubID)
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		id, err := s.SendFile(targetID, targetSubID, req)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
