package voice

import (
	"fmt"
	"path/filepath"
	"strings"
)

const tfiSize = 42

// tfiDetune converts the TFI detune encoding (3 = none, 0..2 negative,
// 4..6 positive) into the chip DT1 field.
var tfiDetune = [7]uint8{7, 6, 5, 0, 1, 2, 3}

// parseTFI decodes a TFM Music Maker instrument: algorithm, feedback and
// four 10 byte operators (MUL DT TL RS AR DR SR RR SL SSG-EG) stored in
// register order.
func parseTFI(name string, data []byte) ([]*Record, error) {
	if len(data) != tfiSize {
		return nil, fmt.Errorf("size %d, want %d", len(data), tfiSize)
	}
	r := &Record{
		Name:       baseName(name),
		Connection: data[0],
		Feedback:   data[1],
		PanLeft:    true,
		PanRight:   true,
		OpMask:     MaskAll,
	}
	for i := 0; i < OperatorCount; i++ {
		b := data[2+i*10 : 12+i*10]
		if b[1] > 6 {
			return nil, fmt.Errorf("operator %d: detune %d", i, b[1])
		}
		r.Ops[i] = Operator{
			MUL:   b[0],
			DT1:   tfiDetune[b[1]],
			TL:    b[2],
			KS:    b[3],
			AR:    b[4],
			D1R:   b[5],
			D2R:   b[6],
			RR:    b[7],
			D1L:   b[8],
			SSGEG: b[9],
		}
	}
	return []*Record{r}, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
