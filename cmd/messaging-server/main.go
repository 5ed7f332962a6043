// Command messaging-server is the thin public-surface binary for the
// server half of the fabric (spec.md §6: "there is no CLI; the
// configuration surface is the API" — this binary only wires together the
// API types from a small set of flags).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kcenon/messaging-fabric/core/container"
	fabriclog "github.com/kcenon/messaging-fabric/core/log"
	"github.com/kcenon/messaging-fabric/fabricserver"
	"github.com/kcenon/messaging-fabric/messages"
	"github.com/kcenon/messaging-fabric/session"
)

func main() {
	addr := flag.String("addr", ":9443", "listen address")
	selfID := flag.String("id", "server", "server self id")
	connectionKey := flag.String("key", "", "required connection_key")
	encrypt := flag.Bool("encrypt", false, "negotiate encrypt_mode with peers")
	compress := flag.Bool("compress", false, "negotiate compress_mode with peers")
	useAck := flag.Bool("ack", false, "emit message_sending_response on forward attempts")
	level := flag.String("log-level", "NOTICE", "DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL")
	flag.Parse()

	backend, err := fabriclog.NewBackend(os.Stderr, *level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "messaging-server:", err)
		os.Exit(1)
	}
	logger := backend.GetLogger("server")

	srv := fabricserver.New(fabricserver.Config{
		SelfID:            *selfID,
		ConnectionKey:     *connectionKey,
		EncryptMode:       *encrypt,
		CompressMode:      *compress,
		CompressBlockSize: 1024,
		UseMessageResponse: *useAck,
		PossibleSessionTypes: []messages.SessionType{
			messages.SessionTypeMessage,
			messages.SessionTypeFile,
			messages.SessionTypeBinary,
		},
		HighPriority:   2,
		NormalPriority: 4,
		LowPriority:    2,
		Log:            logger,
		Callbacks: fabricserver.Callbacks{
			OnSessionStateChange: func(s *session.Session, confirmed bool, err error) {
				id, subID := s.PeerID()
				if confirmed {
					logger.Noticef("session confirmed: %s/%s", id, subID)
					return
				}
				logger.Warningf("session disconnected: %s/%s: %v", id, subID, err)
			},
			OnMessage: func(s *session.Session, c *container.Container) {
				logger.Infof("message from %s: type=%s", c.Header.SourceID, c.Header.MessageType)
			},
			OnFile: func(s *session.Session, indicationID, targetID, targetSubID, targetPath string) {
				logger.Infof("file received: indication=%s target=%s path=%s", indicationID, targetID, targetPath)
			},
			OnBinary: func(s *session.Session, sourceID, sourceSubID, targetID, targetSubID string, payload []byte) {
				logger.Infof("binary received: %d bytes from %s", len(payload), sourceID)
			},
			OnProtoError: func(s *session.Session, err error) {
				logger.Warningf("protocol error: %v", err)
			},
		},
	})

	if err := srv.Start(*addr); err != nil {
		logger.Errorf("start: %v", err)
		os.Exit(1)
	}
	logger.Noticef("listening on %s", srv.Addr())

	select {}
}
