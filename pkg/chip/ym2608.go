package chip

import (
	"github.com/olivierh59500/fmtoy/pkg/fmcore"
	"github.com/olivierh59500/fmtoy/pkg/pitch"
	"github.com/olivierh59500/fmtoy/pkg/voice"
)

const (
	YM2608Channels = 6
	YM2608Clock    = 7987200
)

// OPN register map. Channel registers repeat in bank 1 for channels 3-5.
const (
	opnKeyOn    = 0x28
	opnMode     = 0x29
	opnDTMUL    = 0x30
	opnTL       = 0x40
	opnKSAR     = 0x50
	opnAMDR     = 0x60
	opnSR       = 0x70
	opnSLRR     = 0x80
	opnSSGEG    = 0x90
	opnFnumLow  = 0xA0
	opnFnumHigh = 0xA4
	opnFBAlg    = 0xB0
	opnLRAMSPMS = 0xB4
	opnOpStride = 4

	// opnSixChannels enables the second FM bank on the YM2608.
	opnSixChannels = 0x80
)

// opnKeyBits are the key on bits of register 0x28 per register order
// operator (S1 S3 S2 S4).
var opnKeyBits = [voice.OperatorCount]uint8{0x10, 0x40, 0x20, 0x80}

// YM2608 drives the FM section of an OPNA core: six channels of four
// operators spread over two register banks.
type YM2608 struct {
	base
}

// NewYM2608 returns an uninitialized YM2608 backend.
func NewYM2608(opts ...Option) *YM2608 {
	o := buildOptions(newOPNACore, opts)
	return &YM2608{base: newBase("YM2608", YM2608Channels, YM2608Clock, o)}
}

func newOPNACore(clock, sampleRate int) (Core, error) {
	c, err := fmcore.NewOPNA(clock, sampleRate)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (y *YM2608) Init(clock, sampleRate int) error {
	if err := y.open(clock, sampleRate); err != nil {
		return err
	}
	y.core.WriteReg(0, opnMode, opnSixChannels)
	return nil
}

// locate returns the register bank and in-bank channel of ch.
func locate(ch int) (bank int, c uint8) {
	return ch / 3, uint8(ch % 3)
}

// keySlot is the channel field of the key on register, which skips 3.
func keySlot(ch int) uint8 {
	if ch < 3 {
		return uint8(ch)
	}
	return uint8(ch + 1)
}

func (y *YM2608) ProgramChange(ch int, v *voice.Record) error {
	st, err := y.channel(ch)
	if err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}
	bank, c := locate(ch)
	left, right := v.Sides()
	lr := uint8(0)
	if left {
		lr |= 0x80
	}
	if right {
		lr |= 0x40
	}
	y.core.WriteReg(bank, opnFBAlg+c, v.Feedback<<3|v.Connection)
	y.core.WriteReg(bank, opnLRAMSPMS+c, lr|v.AMS<<4|v.PMS&0x07)
	for j := range v.Ops {
		op := &v.Ops[j]
		r := c + uint8(j)*opnOpStride
		am := uint8(0)
		if op.AMEnable {
			am = 0x80
		}
		y.core.WriteReg(bank, opnDTMUL+r, op.DT1<<4|op.MUL)
		y.core.WriteReg(bank, opnTL+r, op.TL)
		y.core.WriteReg(bank, opnKSAR+r, op.KS<<6|op.AR)
		y.core.WriteReg(bank, opnAMDR+r, am|op.D1R)
		y.core.WriteReg(bank, opnSR+r, op.D2R)
		y.core.WriteReg(bank, opnSLRR+r, op.D1L<<4|op.RR)
		y.core.WriteReg(bank, opnSSGEG+r, op.SSGEG)
	}
	st.load(v)
	return nil
}

// setPitch writes the high register first: the chip latches it until the
// low register is written.
func (y *YM2608) setPitch(ch int, freq float64) error {
	bf, err := pitch.OPNBlockFnum(freq, y.clock)
	if err != nil {
		return err
	}
	bank, c := locate(ch)
	y.core.WriteReg(bank, opnFnumHigh+c, bf.High())
	y.core.WriteReg(bank, opnFnumLow+c, bf.Low())
	return nil
}

func (y *YM2608) NoteOn(ch int, freq float64, velocity uint8) error {
	st, err := y.channel(ch)
	if err != nil {
		return err
	}
	if err := y.setPitch(ch, freq); err != nil {
		return err
	}
	bank, c := locate(ch)
	carriers := Carriers(st.connection, st.mask)
	for j := voice.OperatorCount - 1; j >= 0; j-- {
		if carriers&(1<<j) != 0 {
			y.core.WriteReg(bank, opnTL+c+uint8(j)*opnOpStride, scaledTL(st.tl[j], velocity))
		}
	}
	y.core.WriteReg(0, opnKeyOn, opnKeyMask(st.mask)|keySlot(ch))
	return nil
}

func (y *YM2608) NoteOff(ch int, _ uint8) error {
	if _, err := y.channel(ch); err != nil {
		return err
	}
	y.core.WriteReg(0, opnKeyOn, keySlot(ch))
	return nil
}

func (y *YM2608) PitchBend(ch int, freq float64) error {
	if _, err := y.channel(ch); err != nil {
		return err
	}
	return y.setPitch(ch, freq)
}

func opnKeyMask(mask uint8) uint8 {
	var bits uint8
	for j, b := range opnKeyBits {
		if mask&(1<<j) != 0 {
			bits |= b
		}
	}
	return bits
}
