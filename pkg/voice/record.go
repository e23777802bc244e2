package voice

import (
	"errors"
	"fmt"
)

// OperatorCount is the number of operators of every supported voice.
const OperatorCount = 4

// Operator indices in register order. OPM names them M1 M2 C1 C2,
// OPN names the same slots S1 S3 S2 S4.
const (
	OpM1 = iota
	OpM2
	OpC1
	OpC2
)

// MaskAll enables all four operators.
const MaskAll uint8 = 0x0F

var (
	ErrInvalidRecord = errors.New("invalid voice record")
	ErrProgramRange  = errors.New("program out of range")
	ErrUnknownFormat = errors.New("unknown voice format")
)

// Operator holds the unpacked parameters of one FM operator.
type Operator struct {
	DT1      uint8 // detune 1 (bit 2 = sign)
	MUL      uint8 // frequency multiplier
	TL       uint8 // total level, 0 = loudest
	KS       uint8 // key scale
	AR       uint8 // attack rate
	AMEnable bool
	D1R      uint8 // first decay rate
	DT2      uint8 // detune 2 (OPM only)
	D2R      uint8 // second decay (sustain) rate
	D1L      uint8 // first decay level (sustain level)
	RR       uint8 // release rate
	SSGEG    uint8 // SSG-EG shape (OPN only)
}

// Record is a normalized instrument definition. A Record is never
// modified after loading and may be shared between channels.
type Record struct {
	Name       string
	Connection uint8 // algorithm
	Feedback   uint8
	PanLeft    bool
	PanRight   bool
	AMS        uint8
	PMS        uint8
	// OpMask has bit i set when operator i (register order) is keyed on.
	OpMask uint8
	Ops    [OperatorCount]Operator
}

// Validate checks every field against the widest range any supported
// chip accepts.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.Connection > 7 {
		return fmt.Errorf("%w: connection %d", ErrInvalidRecord, r.Connection)
	}
	if r.Feedback > 7 {
		return fmt.Errorf("%w: feedback %d", ErrInvalidRecord, r.Feedback)
	}
	if r.AMS > 3 {
		return fmt.Errorf("%w: ams %d", ErrInvalidRecord, r.AMS)
	}
	if r.PMS > 7 {
		return fmt.Errorf("%w: pms %d", ErrInvalidRecord, r.PMS)
	}
	if r.OpMask&^MaskAll != 0 {
		return fmt.Errorf("%w: operator mask %#x", ErrInvalidRecord, r.OpMask)
	}
	for i := range r.Ops {
		if err := r.Ops[i].validate(); err != nil {
			return fmt.Errorf("%w: operator %d: %v", ErrInvalidRecord, i, err)
		}
	}
	return nil
}

func (o *Operator) validate() error {
	switch {
	case o.DT1 > 7:
		return fmt.Errorf("dt1 %d", o.DT1)
	case o.MUL > 15:
		return fmt.Errorf("mul %d", o.MUL)
	case o.TL > 127:
		return fmt.Errorf("tl %d", o.TL)
	case o.KS > 3:
		return fmt.Errorf("ks %d", o.KS)
	case o.AR > 31:
		return fmt.Errorf("ar %d", o.AR)
	case o.D1R > 31:
		return fmt.Errorf("d1r %d", o.D1R)
	case o.DT2 > 3:
		return fmt.Errorf("dt2 %d", o.DT2)
	case o.D2R > 31:
		return fmt.Errorf("d2r %d", o.D2R)
	case o.D1L > 15:
		return fmt.Errorf("d1l %d", o.D1L)
	case o.RR > 15:
		return fmt.Errorf("rr %d", o.RR)
	case o.SSGEG > 15:
		return fmt.Errorf("ssg-eg %d", o.SSGEG)
	}
	return nil
}

// Sides reports the output sides of the voice. A voice with both
// sides disabled is played on both, otherwise it would be inaudible.
func (r *Record) Sides() (left, right bool) {
	if !r.PanLeft && !r.PanRight {
		return true, true
	}
	return r.PanLeft, r.PanRight
}

// Init returns a plain sine voice, used when no bank has been loaded.
func Init() *Record {
	r := &Record{
		Name:       "init",
		Connection: 7,
		PanLeft:    true,
		PanRight:   true,
		OpMask:     MaskAll,
	}
	for i := range r.Ops {
		r.Ops[i] = Operator{MUL: 1, TL: 127, AR: 31, D1L: 0, RR: 7}
	}
	r.Ops[OpC2].TL = 0
	return r
}
