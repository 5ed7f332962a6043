// Package messages holds the well-known message_type catalog and field
// name constants of spec.md §6, shared by the session, server, and
// client packages so none of them stringly-type the wire protocol on
// their own.
package messages

import "github.com/google/uuid"

// Well-known message_type values.
const (
	TypeRequestConnection     = "request_connection"
	TypeConfirmConnection     = "confirm_connection"
	TypeEcho                  = "echo"
	TypeRequestFile           = "request_file"
	TypeRequestFiles          = "request_files"
	TypeMessageSendingResponse = "message_sending_response"
)

// Field names carried in a Container's body (spec.md §6).
const (
	FieldConnectionKey          = "connection_key"
	FieldSessionType            = "session_type"
	FieldBridgeMode             = "bridge_mode"
	FieldAutoEcho               = "auto_echo"
	FieldAutoEchoIntervalSecs   = "auto_echo_interval_seconds"
	FieldSnippingTargets        = "snipping_targets"
	FieldConfirm                = "confirm"
	FieldReason                 = "reason"
	FieldKey                    = "key"
	FieldIV                     = "iv"
	FieldEncryptMode             = "encrypt_mode"
	FieldResponse                = "response"
	FieldIndicationID            = "indication_id"
	FieldSource                  = "source"
	FieldTarget                  = "target"
	FieldRequestorID              = "requestor_id"
	FieldRequestorSubID           = "requestor_sub_id"
	FieldMessageType              = "message_type"
	FieldMessage                  = "message"
)

// SessionType is the short numeric session-type code carried in
// request_connection (spec.md §6: 1=message, 2=file, 3=binary).
type SessionType uint8

const (
	SessionTypeMessage SessionType = 1
	SessionTypeFile    SessionType = 2
	SessionTypeBinary  SessionType = 3
)

func (t SessionType) String() string {
	switch t {
	case SessionTypeMessage:
		return "message_line"
	case SessionTypeFile:
		return "file_line"
	case SessionTypeBinary:
		return "binary_line"
	default:
		return "unknown_line"
	}
}

// NewIndicationID mints a correlation id for a file send or a
// synthesized message_sending_response, enriched from the pack's
// google/uuid usage (mickamy-sql-tap/go.mod) since the teacher only uses
// ad hoc atomic counters for its own (unrelated) sequence numbers.
func NewIndicationID() string {
	return uuid.NewString()
}
