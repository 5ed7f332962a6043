package fabricserver

import (
	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/messages"
	"github.com/kcenon/messaging-fabric/session"
)

// routeMessage implements spec.md §4.4: a packet-mode message whose
// target_id equals the server's own self id is delivered locally via the
// application's message callback; otherwise it is fanned out to every
// confirmed session, subject to the router's own and the session's send
// filter, and an optional message_sending_response ack is synthesized.
func (srv *Server) routeMessage(from *session.Session, c *container.Container) {
	if c.Header.TargetID == srv.cfg.SelfID {
		if srv.cfg.Callbacks.OnMessage != nil {
			srv.cfg.Callbacks.OnMessage(from, c)
		}
		return
	}

	delivered := srv.forward(from, c, nil)

	if srv.cfg.UseMessageResponse {
		srv.sendAck(from, c, delivered)
	}
}

// Send fans c out to every confirmed session whose session type matches
// typeFilter (nil means no filter), honoring each session's own send
// predicate. It returns the number of sessions the message was handed to.
func (srv *Server) Send(c *container.Container, typeFilter *messages.SessionType) int {
	return srv.forward(nil, c, typeFilter)
}

func (srv *Server) forward(from *session.Session, c *container.Container, typeFilter *messages.SessionType) int {
	delivered := 0
	for _, s := range srv.snapshot() {
		if s == from {
			continue
		}
		if s.Condition() != session.Confirmed {
			continue
		}
		if typeFilter != nil && s.SessionType() != *typeFilter {
			continue
		}
		if err := s.SendMessage(c.Copy(true)); err == nil {
			delivered++
		}
	}

	if srv.cfg.BroadcastMode && from != nil {
		// Older server class behavior (spec.md §4.4, §9): re-emit
		// messages whose source is not the server to every session,
		// independent of target matching. Implemented as a degenerate
		// routing policy layered on top of the ordinary fan-out above.
		for _, s := range srv.snapshot() {
			if s == from || s.Condition() != session.Confirmed {
				continue
			}
			bcast := c.Copy(true)
			bcast.Header.TargetID = ""
			bcast.Header.TargetSubID = ""
			_ = s.SendMessage(bcast)
		}
	}

	return delivered
}

// sendAck synthesizes the message_sending_response control message of
// spec.md §4.4, addressed back to the original source.
func (srv *Server) sendAck(from *session.Session, original *container.Container, delivered int) {
	if from == nil {
		return
	}

	indicationID, _ := original.GetString(messages.FieldIndicationID)
	if indicationID == "" {
		indicationID = messages.NewIndicationID()
	}

	resp := container.New(container.Header{
		MessageType: messages.TypeMessageSendingResponse,
		SourceID:    srv.cfg.SelfID,
		TargetID:    original.Header.SourceID,
		TargetSubID: original.Header.SourceSubID,
	})
	resp.Set(messages.FieldIndicationID, indicationID)
	resp.Set(messages.FieldRequestorID, original.Header.SourceID)
	resp.Set(messages.FieldRequestorSubID, original.Header.SourceSubID)
	resp.Set(messages.FieldMessageType, original.Header.MessageType)
	resp.Set(messages.FieldMessage, "forwarded")
	resp.Set(messages.FieldResponse, delivered > 0)

	_ = from.SendMessage(resp)
}
