package voice

import "fmt"

const (
	dmpOperatorSize = 11
	dmpSizeV11      = 7 + OperatorCount*dmpOperatorSize
	dmpSizeV9       = 5 + OperatorCount*dmpOperatorSize
)

// DefleMask system bytes of the FM chips a DMP instrument may target.
const (
	dmpSystemGenesis = 0x02
	dmpSystemArcade  = 0x08
)

// dmpSlotToRegister maps file operator order S1 S2 S3 S4 onto register
// order S1 S3 S2 S4.
var dmpSlotToRegister = [OperatorCount]int{0, 2, 1, 3}

// parseDMP decodes a DefleMask FM instrument. Version 11 files carry a
// system byte and both LFO sensitivities; versions 9 and 10 are Genesis
// only and have neither.
func parseDMP(name string, data []byte) ([]*Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	r := &Record{
		Name:     baseName(name),
		PanLeft:  true,
		PanRight: true,
		OpMask:   MaskAll,
	}
	system := byte(dmpSystemGenesis)
	var ops []byte

	switch version := data[0]; version {
	case 11:
		if len(data) != dmpSizeV11 {
			return nil, fmt.Errorf("size %d, want %d", len(data), dmpSizeV11)
		}
		system = data[1]
		if system != dmpSystemGenesis && system != dmpSystemArcade {
			return nil, fmt.Errorf("system %#02x has no FM chip", system)
		}
		if data[2] != 1 {
			return nil, fmt.Errorf("instrument mode %d is not FM", data[2])
		}
		r.PMS = data[3] & 0x07
		r.Feedback = data[4] & 0x07
		r.Connection = data[5] & 0x07
		r.AMS = data[6] & 0x03
		ops = data[7:]
	case 9, 10:
		if len(data) != dmpSizeV9 {
			return nil, fmt.Errorf("size %d, want %d", len(data), dmpSizeV9)
		}
		if data[1] != 1 {
			return nil, fmt.Errorf("instrument mode %d is not FM", data[1])
		}
		r.Feedback = data[3] & 0x07
		r.Connection = data[4] & 0x07
		ops = data[5:]
	default:
		return nil, fmt.Errorf("version %d not supported", version)
	}

	for i := 0; i < OperatorCount; i++ {
		b := ops[i*dmpOperatorSize : (i+1)*dmpOperatorSize]
		dt := b[8] & 0x0F
		if dt > 6 {
			return nil, fmt.Errorf("operator %d: detune %d", i, dt)
		}
		op := Operator{
			MUL:      b[0],
			TL:       b[1],
			AR:       b[2],
			D1R:      b[3],
			D1L:      b[4],
			RR:       b[5],
			AMEnable: b[6] != 0,
			KS:       b[7],
			DT1:      tfiDetune[dt],
			D2R:      b[9],
			SSGEG:    b[10] & 0x0F,
		}
		if system == dmpSystemArcade {
			op.DT2 = (b[8] >> 4) & 0x03
			op.SSGEG = 0
		}
		r.Ops[dmpSlotToRegister[i]] = op
	}
	return []*Record{r}, nil
}

// isDMP reports whether data has the size and version byte of a DMP FM
// instrument.
func isDMP(data []byte) bool {
	switch len(data) {
	case dmpSizeV11:
		return data[0] == 11
	case dmpSizeV9:
		return data[0] == 9 || data[0] == 10
	}
	return false
}
