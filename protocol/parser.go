// File: protocol/parser.go
package protocol

import (
	"encoding/binary"

	"github.com/adamnew123456/tabserver/api"
)

type phase int

const (
	phFlagsLen phase = iota
	phExtLen16
	phExtLen64
	phMaskKey
	phPayload
)

func protoErr(msg string) error {
	return api.NewError(api.ErrCodeProtocol, msg)
}

// Parser is a streaming, incremental decoder for server-bound WebSocket
// frames. Bytes are fed across any number of Feed calls; a fully
// reassembled message is delivered through the callback passed to Feed
// exactly once per message, in arrival order.
//
// A Parser is not safe for concurrent use; callers serialize Feed calls
// per connection the same way the reactor serializes callbacks.
type Parser struct {
	pool api.BufferPool

	phase      phase
	hdrScratch [8]byte
	hdrFilled  int
	hdrNeed    int

	fin                 bool
	opcode              byte
	isControl           bool
	payloadLen          int64
	payloadFilled       int64
	mask                [4]byte
	payloadBuf          api.Buffer

	expectMoreFragments bool
	dataOpcode          byte
	dataFragments       [][]byte
	dataFragBufs        []api.Buffer
	dataFragTotal       int64
}

// NewParser constructs a Parser that rents accumulation buffers for
// fragmented or feed-spanning payloads from pool.
func NewParser(pool api.BufferPool) *Parser {
	p := &Parser{pool: pool}
	p.hdrNeed = 2
	return p
}

// Feed supplies the next chunk of bytes read from the socket. onMessage
// is invoked once per fully reassembled frame; returning an error from
// onMessage aborts the feed and is returned from Feed unchanged.
func (p *Parser) Feed(chunk []byte, onMessage func(Frame) error) error {
	pos := 0
	for {
		progressed, err := p.step(chunk, &pos, onMessage)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

func (p *Parser) step(chunk []byte, pos *int, onMessage func(Frame) error) (bool, error) {
	switch p.phase {
	case phFlagsLen:
		if !p.fillHeader(chunk, pos, 2) {
			return false, nil
		}
		return true, p.onFlagsLen()
	case phExtLen16:
		if !p.fillHeader(chunk, pos, 2) {
			return false, nil
		}
		p.payloadLen = int64(binary.BigEndian.Uint16(p.hdrScratch[:2]))
		p.enterMaskPhase()
		return true, nil
	case phExtLen64:
		if !p.fillHeader(chunk, pos, 8) {
			return false, nil
		}
		v := binary.BigEndian.Uint64(p.hdrScratch[:8])
		if v > uint64(maxPayload) {
			return false, protoErr("payload over 2 GiB")
		}
		p.payloadLen = int64(v)
		p.enterMaskPhase()
		return true, nil
	case phMaskKey:
		if !p.fillHeader(chunk, pos, 4) {
			return false, nil
		}
		copy(p.mask[:], p.hdrScratch[:4])
		p.phase = phPayload
		p.payloadFilled = 0
		p.payloadBuf = api.Buffer{}
		return true, nil
	case phPayload:
		return p.stepPayload(chunk, pos, onMessage)
	}
	return false, nil
}

func (p *Parser) onFlagsLen() error {
	b0, b1 := p.hdrScratch[0], p.hdrScratch[1]
	if b0&0x70 != 0 {
		return protoErr("reserved flags set")
	}
	p.fin = b0&0x80 != 0
	p.opcode = b0 & 0x0F
	p.isControl = isControlOpcode(p.opcode)
	masked := b1&0x80 != 0
	lenField := b1 & 0x7F

	if p.isControl && !p.fin {
		return protoErr("fragmented control frame")
	}
	if p.opcode == opContinuation && !p.expectMoreFragments {
		return protoErr("unexpected continuation")
	}
	if (p.opcode == opText || p.opcode == opBinary) && p.expectMoreFragments {
		return protoErr("data interleaved with fragment")
	}
	if !masked {
		return protoErr("unmasked frame")
	}

	switch lenField {
	case 126:
		p.phase = phExtLen16
		p.resetHeaderScratch(2)
	case 127:
		p.phase = phExtLen64
		p.resetHeaderScratch(8)
	default:
		p.payloadLen = int64(lenField)
		p.enterMaskPhase()
	}
	return nil
}

func (p *Parser) enterMaskPhase() {
	p.phase = phMaskKey
	p.resetHeaderScratch(4)
}

func (p *Parser) resetHeaderScratch(need int) {
	p.hdrNeed = need
	p.hdrFilled = 0
}

// fillHeader copies as many bytes as available from chunk[*pos:] into
// the header scratch area, returning true once hdrNeed bytes have
// accumulated (possibly across several Feed calls).
func (p *Parser) fillHeader(chunk []byte, pos *int, need int) bool {
	for p.hdrFilled < need && *pos < len(chunk) {
		p.hdrScratch[p.hdrFilled] = chunk[*pos]
		p.hdrFilled++
		*pos++
	}
	return p.hdrFilled >= need
}

func (p *Parser) stepPayload(chunk []byte, pos *int, onMessage func(Frame) error) (bool, error) {
	if p.payloadLen == 0 {
		done, err := p.deliverPayload(nil, api.Buffer{}, onMessage)
		p.advanceToNextFrame()
		return done, err
	}

	remaining := p.payloadLen - p.payloadFilled
	avail := int64(len(chunk) - *pos)
	fresh := p.payloadFilled == 0
	standalone := p.isControl || (p.fin && p.opcode != opContinuation)

	if fresh && standalone && avail >= remaining {
		start := *pos
		end := start + int(p.payloadLen)
		payload := chunk[start:end]
		unmaskAt(payload, p.mask, 0)
		*pos = end
		p.payloadFilled = p.payloadLen
		done, err := p.deliverPayload(payload, api.Buffer{}, onMessage)
		p.advanceToNextFrame()
		return done, err
	}

	if p.payloadBuf.Data == nil {
		p.payloadBuf = p.pool.Get(int(p.payloadLen))
	}
	n := remaining
	if avail < n {
		n = avail
	}
	if n > 0 {
		dst := p.payloadBuf.Data[p.payloadFilled : p.payloadFilled+n]
		copy(dst, chunk[*pos:*pos+int(n)])
		unmaskAt(dst, p.mask, p.payloadFilled)
		*pos += int(n)
		p.payloadFilled += n
	}
	if p.payloadFilled < p.payloadLen {
		return n > 0, nil
	}

	payload := p.payloadBuf.Data[:p.payloadLen]
	buf := p.payloadBuf
	p.payloadBuf = api.Buffer{}
	done, err := p.deliverPayload(payload, buf, onMessage)
	p.advanceToNextFrame()
	return done, err
}

func (p *Parser) advanceToNextFrame() {
	p.phase = phFlagsLen
	p.resetHeaderScratch(2)
}

func (p *Parser) deliverPayload(payload []byte, buf api.Buffer, onMessage func(Frame) error) (bool, error) {
	if p.isControl {
		err := onMessage(Frame{Type: controlFrameType(p.opcode), Payload: payload})
		buf.Release()
		return err == nil, err
	}

	if p.opcode == opText || p.opcode == opBinary {
		p.dataOpcode = p.opcode
	}

	if !p.fin {
		p.expectMoreFragments = true
		p.dataFragments = append(p.dataFragments, payload)
		p.dataFragBufs = append(p.dataFragBufs, buf)
		p.dataFragTotal += int64(len(payload))
		if p.dataFragTotal > maxPayload {
			p.releaseFragments()
			return false, protoErr("message too large")
		}
		return true, nil
	}

	var final []byte
	if len(p.dataFragments) == 0 {
		final = payload
	} else {
		total := p.dataFragTotal + int64(len(payload))
		if total > maxPayload {
			p.releaseFragments()
			buf.Release()
			return false, protoErr("message too large")
		}
		combined := make([]byte, 0, total)
		for _, f := range p.dataFragments {
			combined = append(combined, f...)
		}
		combined = append(combined, payload...)
		final = combined
	}

	ft := dataFrameType(p.dataOpcode)
	fragBufs := p.dataFragBufs
	p.dataFragments = nil
	p.dataFragBufs = nil
	p.dataFragTotal = 0
	p.expectMoreFragments = false

	err := onMessage(Frame{Type: ft, Payload: final})
	for _, b := range fragBufs {
		b.Release()
	}
	buf.Release()
	return err == nil, err
}

func (p *Parser) releaseFragments() {
	for _, b := range p.dataFragBufs {
		b.Release()
	}
	p.dataFragBufs = nil
}

// unmaskAt XORs data in place against mask, treating data[0] as lying
// at byte offset `offset` within the overall frame payload, so a
// fragment written partway through a payload unmasks correctly.
func unmaskAt(data []byte, mask [4]byte, offset int64) {
	for i := range data {
		data[i] ^= mask[(offset+int64(i))&3]
	}
}
