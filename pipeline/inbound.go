package pipeline

import (
	"fmt"

	"github.com/kcenon/messaging-fabric/core/container"
	"github.com/kcenon/messaging-fabric/core/wire"
	"github.com/kcenon/messaging-fabric/core/worker"
	"github.com/kcenon/messaging-fabric/filestore"
)

// HandleInbound dispatches a freshly decoded frame to the inbound chain
// for its mode (spec.md §4.2): decompress? -> decrypt? -> (deserialize |
// split-header) -> notify/dispatch.
func (p *Pipeline) HandleInbound(mode wire.Mode, payload []byte) error {
	switch mode {
	case wire.ModePacket:
		p.push(worker.Normal, payload, p.inboundDecompressStage(mode))
	case wire.ModeFile:
		p.push(worker.Normal, payload, p.inboundDecompressStage(mode))
	case wire.ModeBinary:
		p.push(worker.Normal, payload, p.inboundDecompressStage(mode))
	default:
		return fmt.Errorf("pipeline: unhandled mode %v", mode)
	}
	return nil
}

func (p *Pipeline) inboundDecompressStage(mode wire.Mode) func([]byte) {
	return func(data []byte) {
		out, err := p.compress(data, Inbound)
		if err != nil {
			p.fail(fmt.Errorf("pipeline: decompress: %w", err))
			return
		}
		p.push(worker.High, out, p.inboundDecryptStage(mode))
	}
}

func (p *Pipeline) inboundDecryptStage(mode wire.Mode) func([]byte) {
	return func(data []byte) {
		out, err := p.decrypt(data, mode)
		if err != nil {
			p.fail(fmt.Errorf("pipeline: decrypt: %w", err))
			return
		}
		switch mode {
		case wire.ModePacket:
			p.push(worker.Normal, out, p.inboundDeserializeStage)
		case wire.ModeFile:
			p.push(worker.Low, out, p.inboundSplitFileStage)
		case wire.ModeBinary:
			p.push(worker.Normal, out, p.inboundSplitBinaryStage)
		}
	}
}

// decrypt is identical to the outbound encrypt stage's decrypt direction,
// split out so empty input is a no-op terminator per spec.md §4.2.
func (p *Pipeline) decrypt(data []byte, mode wire.Mode) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return p.encrypt(data, Inbound)
}

func (p *Pipeline) inboundDeserializeStage(data []byte) {
	if len(data) == 0 {
		// A packet-mode message with empty payload is a protocol error
		// caught at deserialize (spec.md §8 boundary behavior).
		p.fail(fmt.Errorf("pipeline: empty packet payload"))
		return
	}
	c, err := container.FromBytes(data, true)
	if err != nil {
		p.fail(fmt.Errorf("pipeline: deserialize: %w", err))
		return
	}
	if p.cfg.OnMessage != nil {
		p.cfg.OnMessage(c)
	}
}

func (p *Pipeline) inboundSplitFileStage(data []byte) {
	if len(data) == 0 {
		return
	}
	fr := wire.NewFieldReader(data)
	indicationID, err := fr.String()
	if err != nil {
		p.fail(fmt.Errorf("pipeline: split file header: %w", err))
		return
	}
	_, _ = fr.String() // source_id, informational only on receive
	_, _ = fr.String() // source_sub_id
	targetID, _ := fr.String()
	targetSubID, _ := fr.String()
	_, _ = fr.String() // source_path, informational
	targetPath, err := fr.String()
	if err != nil {
		p.fail(fmt.Errorf("pipeline: split file header: %w", err))
		return
	}
	fileBytes, err := fr.Field()
	if err != nil {
		p.fail(fmt.Errorf("pipeline: split file header: %w", err))
		return
	}

	p.push(worker.Low, nil, func([]byte) {
		if err := filestore.SaveErr(targetPath, fileBytes); err != nil {
			// spec.md §7: Application errors surface in the request_file
			// response as an empty target_path and are logged, not sent
			// to the peer as a protocol error.
			p.fail(fmt.Errorf("pipeline: save %q: %w", targetPath, err))
			targetPath = ""
		}
		if p.cfg.OnFile != nil {
			p.cfg.OnFile(indicationID, targetID, targetSubID, targetPath)
		}
	})
}

func (p *Pipeline) inboundSplitBinaryStage(data []byte) {
	if len(data) == 0 {
		p.fail(fmt.Errorf("pipeline: empty binary payload"))
		return
	}
	fr := wire.NewFieldReader(data)
	sourceID, err := fr.String()
	if err != nil {
		p.fail(fmt.Errorf("pipeline: split binary header: %w", err))
		return
	}
	sourceSubID, _ := fr.String()
	targetID, _ := fr.String()
	targetSubID, _ := fr.String()
	payload, err := fr.Field()
	if err != nil {
		p.fail(fmt.Errorf("pipeline: split binary header: %w", err))
		return
	}
	if p.cfg.OnBinary != nil {
		p.cfg.OnBinary(sourceID, sourceSubID, targetID, targetSubID, payload)
	}
}
