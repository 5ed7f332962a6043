package session

import (
	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/worker"
	"github.com/kcenon/messaging-fabric/messages"
)

func (s *Session) sendEcho() {
	id, subID := s.SelfID()
	peerID, peerSubID := s.PeerID()

	c := container.New(container.Header{
		MessageType: messages.TypeEcho,
		SourceID:    id,
		SourceSubID: subID,
		TargetID:    peerID,
		TargetSubID: peerSubID,
	})
	c.Set(messages.FieldResponse, false)
	s.pipe.SendMessage(c)
}

// handleEcho implements spec.md §4.3's auto-echo reply rule: receipt of
// an echo with response unset is answered by swapping source/target and
// setting response=true, at top priority.
func (s *Session) handleEcho(c *container.Container) {
	responded, _ := c.GetBool(messages.FieldResponse)
	if responded {
		if s.log != nil {
			s.log.Debugf("received echo response from %s", c.Header.SourceID)
		}
		return
	}

	reply := c.Copy(true)
	reply.SwapHeader()
	reply.Set(messages.FieldResponse, true)
	s.pipe.SendMessageWithPriority(reply, worker.Top)
}
