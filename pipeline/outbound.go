package pipeline

import (
	"fmt"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/wire"
	"github.com/kcenon/messaging-fabric/core/worker"
	"github.com/kcenon/messaging-fabric/filestore"
)

// SendMessage runs the outbound packet-channel chain: serialize -> encrypt?
// -> compress? -> frame-send (spec.md §4.2), each stage re-enqueued on the
// pool at the priority table of §4.2.
func (p *Pipeline) SendMessage(c *container.Container) {
	p.SendMessageWithPriority(c, worker.Normal)
}

// SendMessageWithPriority is SendMessage with an explicit priority for the
// serialize stage, used by the echo responder to skip ahead of ordinary
// traffic (spec.md §4.3: "returning it at top priority").
func (p *Pipeline) SendMessageWithPriority(c *container.Container, priority worker.Priority) {
	p.push(priority, nil, func([]byte) {
		raw, err := c.SerializeArray()
		if err != nil {
			p.fail(fmt.Errorf("pipeline: serialize: %w", err))
			return
		}
		p.push(worker.High, raw, p.outboundEncryptStage)
	})
}

func (p *Pipeline) outboundEncryptStage(data []byte) {
	out, err := p.encrypt(data, Outbound)
	if err != nil {
		p.fail(fmt.Errorf("pipeline: encrypt: %w", err))
		return
	}
	p.push(worker.Normal, out, p.outboundCompressStage(wire.ModePacket))
}

func (p *Pipeline) outboundCompressStage(mode wire.Mode) func([]byte) {
	return func(data []byte) {
		out, err := p.compress(data, Outbound)
		if err != nil {
			p.fail(fmt.Errorf("pipeline: compress: %w", err))
			return
		}
		p.push(worker.Top, out, func(final []byte) {
			if p.cfg.SendFrame != nil {
				p.cfg.SendFrame(mode, final)
			}
		})
	}
}

// SendBinary runs the outbound binary-channel chain: prefix-header ->
// encrypt? -> compress? -> frame-send. Empty payloads are rejected at the
// send call per spec.md §8's boundary rule, not enqueued at all.
func (p *Pipeline) SendBinary(sourceID, sourceSubID, targetID, targetSubID string, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("pipeline: refusing to send empty binary payload")
	}

	p.push(worker.Normal, nil, func([]byte) {
		fw := (&wire.FieldWriter{}).
			PutString(sourceID).
			PutString(sourceSubID).
			PutString(targetID).
			PutString(targetSubID).
			PutField(payload)
		p.push(worker.High, fw.Bytes(), p.outboundEncryptBinaryStage)
	})
	return nil
}

func (p *Pipeline) outboundEncryptBinaryStage(data []byte) {
	out, err := p.encrypt(data, Outbound)
	if err != nil {
		p.fail(fmt.Errorf("pipeline: encrypt: %w", err))
		return
	}
	p.push(worker.Normal, out, p.outboundCompressStage(wire.ModeBinary))
}

// SendFile runs the outbound file-channel chain: load+header-prefix ->
// encrypt? -> compress? -> frame-send. The file-system load runs at Low
// priority per spec.md §4.2's table, so it never competes with socket
// writes or encryption for scheduling.
func (p *Pipeline) SendFile(indicationID, sourceID, sourceSubID, targetID, targetSubID, sourcePath, targetPath string) {
	p.push(worker.Low, nil, func([]byte) {
		data, err := filestore.Load(sourcePath)
		if err != nil {
			p.fail(fmt.Errorf("pipeline: load %q: %w", sourcePath, err))
			return
		}
		fw := (&wire.FieldWriter{}).
			PutString(indicationID).
			PutString(sourceID).
			PutString(sourceSubID).
			PutString(targetID).
			PutString(targetSubID).
			PutString(sourcePath).
			PutString(targetPath).
			PutField(data)
		p.push(worker.High, fw.Bytes(), p.outboundEncryptFileStage)
	})
}

func (p *Pipeline) outboundEncryptFileStage(data []byte) {
	out, err := p.encrypt(data, Outbound)
	if err != nil {
		p.fail(fmt.Errorf("pipeline: encrypt: %w", err))
		return
	}
	p.push(worker.Normal, out, p.outboundCompressStage(wire.ModeFile))
}
