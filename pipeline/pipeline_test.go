package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kcenon/messaging-fabric/core/aead"
	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/wire"
)

func newTestPipeline(t *testing.T, encrypt, compress bool) (*Pipeline, *[]wire.Mode, *[][]byte) {
	t.Helper()

	key, iv, err := aead.CreateKey()
	require.NoError(t, err)

	var mu sync.Mutex
	var modes []wire.Mode
	var frames [][]byte

	p := New(Config{
		EncryptMode:       func() bool { return encrypt },
		CompressMode:      func() bool { return compress },
		CompressBlockSize: 256,
		KeyIV:             func() ([]byte, []byte) { return key, iv },
		SendFrame: func(mode wire.Mode, payload []byte) {
			mu.Lock()
			defer mu.Unlock()
			modes = append(modes, mode)
			frames = append(frames, payload)
		},
	})
	return p, &modes, &frames
}

func TestSendMessageProducesFrame(t *testing.T) {
	p, modes, frames := newTestPipeline(t, true, true)

	c := container.New(container.Header{MessageType: "echo", SourceID: "A", TargetID: "B"})
	c.Set("response", false)
	p.SendMessage(c)

	require.Len(t, *modes, 1)
	require.Equal(t, wire.ModePacket, (*modes)[0])
	require.NotEmpty(t, (*frames)[0])
}

func TestInboundRoundTripsAMessage(t *testing.T) {
	key, iv, err := aead.CreateKey()
	require.NoError(t, err)

	var gotMessage *container.Container
	var gotErr error

	send := New(Config{
		EncryptMode:       func() bool { return true },
		CompressMode:      func() bool { return true },
		CompressBlockSize: 256,
		KeyIV:             func() ([]byte, []byte) { return key, iv },
		SendFrame: func(mode wire.Mode, payload []byte) {
			recv := New(Config{
				EncryptMode:       func() bool { return true },
				CompressMode:      func() bool { return true },
				CompressBlockSize: 256,
				KeyIV:             func() ([]byte, []byte) { return key, iv },
				OnMessage:         func(c *container.Container) { gotMessage = c },
				OnProtoError:      func(err error) { gotErr = err },
			})
			require.NoError(t, recv.HandleInbound(mode, payload))
		},
	})

	c := container.New(container.Header{MessageType: "echo", SourceID: "A", TargetID: "B"})
	c.Set("n", int64(7))
	send.SendMessage(c)

	require.NoError(t, gotErr)
	require.NotNil(t, gotMessage)
	require.Equal(t, "echo", gotMessage.Header.MessageType)
	n, ok := gotMessage.Get("n")
	require.True(t, ok)
	require.EqualValues(t, 7, n)
}

func TestSendBinaryRejectsEmptyPayload(t *testing.T) {
	p, _, _ := newTestPipeline(t, false, false)
	err := p.SendBinary("A", "1", "B", "2", nil)
	require.Error(t, err)
}

func TestBinaryRoundTrip(t *testing.T) {
	var gotSource, gotTarget string
	var gotPayload []byte

	p := New(Config{
		EncryptMode:  func() bool { return false },
		CompressMode: func() bool { return false },
		OnBinary: func(sourceID, sourceSubID, targetID, targetSubID string, payload []byte) {
			gotSource = sourceID
			gotTarget = targetID
			gotPayload = payload
		},
		SendFrame: func(mode wire.Mode, payload []byte) {
			p2 := New(Config{
				EncryptMode:  func() bool { return false },
				CompressMode: func() bool { return false },
				OnBinary: func(sourceID, sourceSubID, targetID, targetSubID string, payload []byte) {
					gotSource = sourceID
					gotTarget = targetID
					gotPayload = payload
				},
			})
			require.NoError(t, p2.HandleInbound(mode, payload))
		},
	})

	require.NoError(t, p.SendBinary("A", "1", "B", "2", []byte{1, 2, 3, 4}))
	require.Equal(t, "A", gotSource)
	require.Equal(t, "B", gotTarget)
	require.Equal(t, []byte{1, 2, 3, 4}, gotPayload)
}
