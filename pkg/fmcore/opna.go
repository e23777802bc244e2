package fmcore

import "math"

const opnaChannels = 6

// opnKeyBits maps register order operators (S1 S3 S2 S4) to the key on
// bits of 0x28.
var opnKeyBits = [operators]uint8{0x10, 0x40, 0x20, 0x80}

// OPNA renders the FM section of a YM2608. Channels 3-5 live in register
// bank 1 and stay muted until six channel mode is enabled through 0x29.
type OPNA struct {
	*engine
	regs  [2][256]uint8
	latch [2][3]uint8
}

// NewOPNA returns a reset OPNA core.
func NewOPNA(clock, sampleRate int) (*OPNA, error) {
	e, err := newEngine(clock, sampleRate, opnaChannels)
	if err != nil {
		return nil, err
	}
	o := &OPNA{engine: e}
	o.setSixChannel(false)
	return o, nil
}

func (o *OPNA) Reset() {
	o.regs = [2][256]uint8{}
	o.latch = [2][3]uint8{}
	o.engine.reset()
	o.setSixChannel(false)
}

func (o *OPNA) setSixChannel(on bool) {
	for ch := 3; ch < opnaChannels; ch++ {
		o.ch[ch].enabled = on
	}
}

// WriteReg writes one register of bank 0 or 1.
func (o *OPNA) WriteReg(bank int, addr, data uint8) {
	if bank < 0 || bank > 1 {
		return
	}
	o.regs[bank][addr] = data
	if addr < 0x30 {
		if bank == 0 {
			o.writeGlobal(addr, data)
		}
		return
	}
	c := int(addr & 3)
	if c == 3 {
		return
	}
	ch := &o.ch[bank*3+c]
	switch {
	case addr < 0xA0:
		op := &ch.ops[(addr>>2)&3]
		switch addr & 0xF0 {
		case 0x30:
			op.dt1 = (data >> 4) & 7
			op.mul = data & 0x0F
		case 0x40:
			op.tl = data & 0x7F
		case 0x50:
			op.ks = data >> 6
			op.ar = data & 0x1F
		case 0x60:
			op.am = data&0x80 != 0
			op.d1r = data & 0x1F
		case 0x70:
			op.d2r = data & 0x1F
		case 0x80:
			op.d1l = data >> 4
			op.rr = data & 0x0F
		case 0x90:
			op.ssgeg = data & 0x0F
		}
		op.updateIncrement(ch.freq, o.sampleRate)
	case addr < 0xA4:
		fnum := int(o.latch[bank][c]&7)<<8 | int(data)
		block := int(o.latch[bank][c]>>3) & 7
		ch.setFrequency(o.frequency(fnum, block), o.sampleRate)
	case addr < 0xA8:
		// held until the low byte is written
		o.latch[bank][c] = data
	case addr >= 0xB0 && addr < 0xB4:
		ch.feedback = (data >> 3) & 7
		ch.connection = data & 7
	case addr >= 0xB4 && addr < 0xB8:
		ch.left = data&0x80 != 0
		ch.right = data&0x40 != 0
		ch.ams = (data >> 4) & 3
		ch.pms = data & 7
	}
}

func (o *OPNA) writeGlobal(addr, data uint8) {
	switch addr {
	case 0x28:
		slot := int(data & 7)
		if slot == 3 || slot == 7 {
			return
		}
		ch := slot
		if slot > 3 {
			ch--
		}
		var mask uint8
		for j, bit := range opnKeyBits {
			if data&bit != 0 {
				mask |= 1 << j
			}
		}
		o.setKeys(ch, mask)
	case 0x29:
		o.setSixChannel(data&0x80 != 0)
	}
}

func (o *OPNA) Render(left, right []int32) {
	o.render(left, right)
}

func (o *OPNA) frequency(fnum, block int) float64 {
	return float64(fnum) * float64(o.clock) * math.Pow(2, float64(block-1)) / (144 * (1 << 20))
}
