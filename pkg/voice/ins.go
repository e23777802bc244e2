package voice

import (
	"bytes"
	"fmt"
)

var insMagic = []byte("MVSI")

// insBodySize is seven groups of four operator registers plus the
// feedback/algorithm byte.
const insBodySize = 7*OperatorCount + 1

// parseINS decodes an MVSTracker instrument: "MVSI", a version byte, a
// NUL terminated name, then the OPN registers 0x30 to 0x90 for the four
// operators in register order and the 0xB0 feedback/algorithm byte.
func parseINS(name string, data []byte) ([]*Record, error) {
	if !bytes.HasPrefix(data, insMagic) {
		return nil, fmt.Errorf("missing MVSI header")
	}
	rest := data[len(insMagic):]
	if len(rest) < 1 {
		return nil, fmt.Errorf("missing version")
	}
	rest = rest[1:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return nil, fmt.Errorf("unterminated name")
	}
	title := string(bytes.TrimSpace(rest[:end]))
	body := rest[end+1:]
	if len(body) != insBodySize {
		return nil, fmt.Errorf("register block is %d bytes, want %d", len(body), insBodySize)
	}

	r := &Record{
		Name:       title,
		Connection: body[28] & 0x07,
		Feedback:   (body[28] >> 3) & 0x07,
		PanLeft:    true,
		PanRight:   true,
		OpMask:     MaskAll,
	}
	if r.Name == "" {
		r.Name = baseName(name)
	}
	reg := func(group, op int) byte { return body[group*OperatorCount+op] }
	for i := 0; i < OperatorCount; i++ {
		r.Ops[i] = Operator{
			DT1:      (reg(0, i) >> 4) & 0x07,
			MUL:      reg(0, i) & 0x0F,
			TL:       reg(1, i) & 0x7F,
			KS:       reg(2, i) >> 6,
			AR:       reg(2, i) & 0x1F,
			AMEnable: reg(3, i)&0x80 != 0,
			D1R:      reg(3, i) & 0x1F,
			D2R:      reg(4, i) & 0x1F,
			D1L:      reg(5, i) >> 4,
			RR:       reg(5, i) & 0x0F,
			SSGEG:    reg(6, i) & 0x0F,
		}
	}
	return []*Record{r}, nil
}
