// Command messaging-client is the thin public-surface binary for the
// client half of the fabric (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/fabricclient"
	"github.com/kcenon/messaging-fabric/messages"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9443", "server address to dial")
	selfID := flag.String("id", "client", "client self id")
	connectionKey := flag.String("key", "", "connection_key to present")
	sessionType := flag.String("type", "message", "message|file|binary")
	encrypt := flag.Bool("encrypt", false, "request encrypt_mode")
	compress := flag.Bool("compress", false, "request compress_mode")
	autoEcho := flag.Bool("auto-echo", false, "send a periodic echo")
	reconnect := flag.Bool("reconnect", true, "reconnect with backoff on disconnect")
	flag.Parse()

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "messaging-client",
	})

	st, err := parseSessionType(*sessionType)
	if err != nil {
		logger.Fatal(err)
	}

	cli := fabricclient.New(fabricclient.Config{
		SelfID:                *selfID,
		ConnectionKey:         *connectionKey,
		Type:                  st,
		EncryptMode:           *encrypt,
		CompressMode:          *compress,
		CompressBlockSize:     1024,
		AutoEcho:              *autoEcho,
		AutoEchoIntervalSecs:  5,
		DropConnectionTimeSec: 5,
		Reconnect:             *reconnect,
		HighPriority:          2,
		NormalPriority:        4,
		LowPriority:           2,
		Log:                   logger,
		Callbacks: fabricclient.Callbacks{
			OnConnect: func(c *fabricclient.Client, connected bool, err error) {
				if connected {
					logger.Info("connected")
					return
				}
				logger.Warn("disconnected", "err", err)
			},
			OnMessage: func(c *fabricclient.Client, msg *container.Container) {
				logger.Info("received message", "type", msg.Header.MessageType, "from", msg.Header.SourceID)
			},
			OnProtoError: func(c *fabricclient.Client, err error) {
				logger.Warn("protocol error", "err", err)
			},
		},
	})

	if err := cli.Dial(*addr); err != nil {
		logger.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cli.Stop()
}

func parseSessionType(s string) (messages.SessionType, error) {
	switch s {
	case "message":
		return messages.SessionTypeMessage, nil
	case "file":
		return messages.SessionTypeFile, nil
	case "binary":
		return messages.SessionTypeBinary, nil
	default:
		return 0, fmt.Errorf("messaging-client: unknown session type %q", s)
	}
}
