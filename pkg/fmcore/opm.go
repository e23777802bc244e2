package fmcore

import "math"

const opmChannels = 8

// opmKeyBits maps register order operators to the key on bits of 0x08.
var opmKeyBits = [operators]uint8{0x08, 0x20, 0x10, 0x40}

// OPM renders a YM2151.
type OPM struct {
	*engine
	regs [256]uint8
}

// NewOPM returns a reset OPM core.
func NewOPM(clock, sampleRate int) (*OPM, error) {
	e, err := newEngine(clock, sampleRate, opmChannels)
	if err != nil {
		return nil, err
	}
	return &OPM{engine: e}, nil
}

// Reset silences every channel and clears the register file.
func (o *OPM) Reset() {
	o.regs = [256]uint8{}
	o.engine.reset()
}

// WriteReg writes one register. The OPM has a single bank.
func (o *OPM) WriteReg(_ int, addr, data uint8) {
	o.regs[addr] = data
	switch {
	case addr == 0x08:
		ch := int(data & 7)
		var mask uint8
		for j, bit := range opmKeyBits {
			if data&bit != 0 {
				mask |= 1 << j
			}
		}
		o.setKeys(ch, mask)
	case addr >= 0x20 && addr < 0x28:
		c := &o.ch[addr&7]
		c.left = data&0x40 != 0
		c.right = data&0x80 != 0
		c.feedback = (data >> 3) & 7
		c.connection = data & 7
	case addr >= 0x28 && addr < 0x38:
		ch := int(addr & 7)
		o.ch[ch].setFrequency(o.frequency(ch), o.sampleRate)
	case addr >= 0x38 && addr < 0x40:
		c := &o.ch[addr&7]
		c.pms = (data >> 4) & 7
		c.ams = data & 3
	case addr >= 0x40:
		c := &o.ch[addr&7]
		op := &c.ops[(addr>>3)&3]
		switch addr & 0xE0 {
		case 0x40:
			op.dt1 = (data >> 4) & 7
			op.mul = data & 0x0F
		case 0x60:
			op.tl = data & 0x7F
		case 0x80:
			op.ks = data >> 6
			op.ar = data & 0x1F
		case 0xA0:
			op.am = data&0x80 != 0
			op.d1r = data & 0x1F
		case 0xC0:
			op.dt2 = data >> 6
			op.d2r = data & 0x1F
		case 0xE0:
			op.d1l = data >> 4
			op.rr = data & 0x0F
		}
		op.updateIncrement(c.freq, o.sampleRate)
	}
}

// Render fills left and right with the mixed output.
func (o *OPM) Render(left, right []int32) {
	o.render(left, right)
}

// frequency decodes the key code and key fraction registers of ch.
func (o *OPM) frequency(ch int) float64 {
	kc := o.regs[0x28+ch]
	octave := int(kc>>4) & 7
	note := int(kc & 0x0F)
	semitone := note - note/4
	kf := octave*768 + semitone*64 + int(o.regs[0x30+ch]>>2)
	return 440 * math.Pow(2, float64(kf-3584)/768) * float64(o.clock) / 3579545
}
