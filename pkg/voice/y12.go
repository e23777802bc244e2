package voice

import (
	"bytes"
	"fmt"
	"strings"
)

const y12Size = 128

// parseY12 decodes a Gens KMod dump: four 16 byte operator blocks holding
// the raw OPN register values in register order, algorithm at 0x40,
// feedback at 0x41 and a 16 byte name at 0x50.
func parseY12(name string, data []byte) ([]*Record, error) {
	if len(data) != y12Size {
		return nil, fmt.Errorf("size %d, want %d", len(data), y12Size)
	}
	r := &Record{
		Name:       y12Name(data[0x50:0x60]),
		Connection: data[0x40] & 0x07,
		Feedback:   data[0x41] & 0x07,
		PanLeft:    true,
		PanRight:   true,
		OpMask:     MaskAll,
	}
	if r.Name == "" {
		r.Name = baseName(name)
	}
	for i := 0; i < OperatorCount; i++ {
		b := data[i*16 : i*16+7]
		r.Ops[i] = Operator{
			DT1:      (b[0] >> 4) & 0x07,
			MUL:      b[0] & 0x0F,
			TL:       b[1] & 0x7F,
			KS:       b[2] >> 6,
			AR:       b[2] & 0x1F,
			AMEnable: b[3]&0x80 != 0,
			D1R:      b[3] & 0x1F,
			D2R:      b[4] & 0x1F,
			D1L:      b[5] >> 4,
			RR:       b[5] & 0x0F,
			SSGEG:    b[6] & 0x0F,
		}
	}
	return []*Record{r}, nil
}

func y12Name(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
