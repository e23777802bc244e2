package voice

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// opmSlotBits maps register-order operators to the VOPM SLOT / key-on bits.
var opmSlotBits = [OperatorCount]uint8{0x08, 0x20, 0x10, 0x40}

// opmOperatorLine maps the VOPM line labels to register-order operators.
var opmOperatorLine = map[string]int{
	"M1": OpM1,
	"C1": OpC1,
	"M2": OpM2,
	"C2": OpC2,
}

const (
	opmSeenOps = 1<<OperatorCount - 1
	opmSeenCH  = 1 << OperatorCount
	opmSeenAll = opmSeenOps | opmSeenCH
)

// parseOPM decodes a VOPM text bank:
//
//	@:0 Name
//	LFO: LFRQ AMD PMD WF NFRQ
//	CH: PAN FL CON AMS PMS SLOT NE
//	M1: AR D1R D2R RR D1L TL KS MUL DT1 DT2 AMS-EN
//
// followed by C1, M2 and C2 lines.
func parseOPM(data []byte) ([]*Record, error) {
	var (
		out  []*Record
		cur  *Record
		seen int
		line int
	)
	finish := func() error {
		if cur == nil {
			return nil
		}
		if seen != opmSeenAll {
			return fmt.Errorf("voice %q incomplete", cur.Name)
		}
		out = append(out, cur)
		cur = nil
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "@:") {
			if err := finish(); err != nil {
				return nil, err
			}
			name := strings.TrimSpace(text[2:])
			if sp := strings.IndexAny(name, " \t"); sp >= 0 {
				name = strings.TrimSpace(name[sp:])
			} else {
				name = ""
			}
			cur = &Record{Name: name}
			seen = 0
			continue
		}

		key, rest, ok := strings.Cut(text, ":")
		if !ok || cur == nil {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		switch key {
		case "LFO":
			// chip-global, not part of a voice
		case "CH":
			v, err := opmFields(rest, 7)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cur.PanLeft = v[0]&0x40 != 0
			cur.PanRight = v[0]&0x80 != 0
			cur.Feedback = uint8(v[1])
			cur.Connection = uint8(v[2])
			cur.AMS = uint8(v[3])
			cur.PMS = uint8(v[4])
			for i, bit := range opmSlotBits {
				if uint8(v[5])&bit != 0 {
					cur.OpMask |= 1 << i
				}
			}
			seen |= opmSeenCH
		default:
			idx, ok := opmOperatorLine[key]
			if !ok {
				continue
			}
			v, err := opmFields(rest, 11)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cur.Ops[idx] = Operator{
				AR:       uint8(v[0]),
				D1R:      uint8(v[1]),
				D2R:      uint8(v[2]),
				RR:       uint8(v[3]),
				D1L:      uint8(v[4]),
				TL:       uint8(v[5]),
				KS:       uint8(v[6]),
				MUL:      uint8(v[7]),
				DT1:      uint8(v[8]),
				DT2:      uint8(v[9]),
				AMEnable: v[10] != 0,
			}
			seen |= 1 << idx
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no voices found")
	}
	return out, nil
}

func opmFields(s string, n int) ([]int, error) {
	f := strings.Fields(s)
	if len(f) < n {
		return nil, fmt.Errorf("want %d fields, got %d", n, len(f))
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(f[i])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("field %d out of range: %d", i+1, v)
		}
		out[i] = v
	}
	return out, nil
}
