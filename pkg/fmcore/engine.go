// Package fmcore is an approximate four operator FM renderer with register
// front ends for the YM2151 (OPM) and the FM section of the YM2608 (OPNA).
//
// The cores decode the chips' register maps and synthesize floating point
// sine operators wired by the eight standard connections. Envelope rates,
// detune and feedback follow the chip formulas closely enough to be
// recognizable. Output is not bit exact.
package fmcore

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidRate = errors.New("invalid clock or sample rate")

const (
	operators = 4

	// channelScale converts one carrier at full level to the chip range.
	channelScale = 4096
	channelLimit = 8191
	outputLimit  = 16383

	// maxAttenuation is the envelope floor in dB.
	maxAttenuation = 96.0
	// tlStep is the attenuation of one total level step in dB.
	tlStep = 0.75
	// slStep is the attenuation of one sustain level step in dB.
	slStep = 3.0

	// rateBaseSeconds is the time a full decay takes at effective rate 0
	// before the per rate halving.
	rateBaseSeconds = 118.0
	attackSpeedup   = 4.0

	// modulationDepth is the phase swing, in cycles, of a full scale
	// modulator.
	modulationDepth = 4.0
)

type envStage int

const (
	envOff envStage = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

func (s envStage) String() string {
	switch s {
	case envAttack:
		return "attack"
	case envDecay:
		return "decay"
	case envSustain:
		return "sustain"
	case envRelease:
		return "release"
	}
	return "off"
}

// dt2Factors are the OPM coarse detune multipliers.
var dt2Factors = [4]float64{1, 1.41, 1.57, 1.73}

// dt1Cents approximates the fine detune spread per DT1 magnitude.
var dt1Cents = [4]float64{0, 1.5, 3, 4.5}

type operator struct {
	dt1, mul, dt2 uint8
	tl            uint8
	ks            uint8
	ar, d1r, d2r  uint8
	d1l, rr       uint8
	am            bool
	ssgeg         uint8

	phase float64 // cycles, wrapped to [0, 1)
	inc   float64 // cycles per sample
	stage envStage
	level float64 // envelope attenuation in dB
	prev  [2]float64
}

type channel struct {
	ops        [operators]operator
	connection uint8
	feedback   uint8
	left       bool
	right      bool
	ams, pms   uint8
	freq       float64
	enabled    bool
}

// engine holds the state shared by both register front ends.
type engine struct {
	clock      int
	sampleRate float64
	ch         []channel
	out        [2]outputStage
}

func newEngine(clock, sampleRate, channels int) (*engine, error) {
	if clock <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: clock %d, rate %d", ErrInvalidRate, clock, sampleRate)
	}
	e := &engine{
		clock:      clock,
		sampleRate: float64(sampleRate),
		ch:         make([]channel, channels),
	}
	e.reset()
	return e, nil
}

func (e *engine) reset() {
	for i := range e.ch {
		e.ch[i] = channel{left: true, right: true, enabled: true}
		for j := range e.ch[i].ops {
			e.ch[i].ops[j].level = maxAttenuation
			e.ch[i].ops[j].tl = 127
		}
	}
	for i := range e.out {
		e.out[i].reset()
		e.out[i].filter = true
	}
}

// keyCode approximates the five bit key code used for rate scaling.
func keyCode(freq float64) int {
	if freq <= 0 {
		return 0
	}
	kc := int(4 * math.Log2(freq/27.5))
	if kc < 0 {
		return 0
	}
	if kc > 31 {
		return 31
	}
	return kc
}

func (c *channel) setFrequency(freq, sampleRate float64) {
	c.freq = freq
	for j := range c.ops {
		c.ops[j].updateIncrement(freq, sampleRate)
	}
}

func (o *operator) updateIncrement(freq, sampleRate float64) {
	mul := float64(o.mul)
	if o.mul == 0 {
		mul = 0.5
	}
	f := freq * mul * dt2Factors[o.dt2&3]
	if d := o.dt1 & 3; d != 0 {
		cents := dt1Cents[d]
		if o.dt1&4 != 0 {
			cents = -cents
		}
		f *= math.Pow(2, cents/1200)
	}
	o.inc = f / sampleRate
}

func (o *operator) keyOn() {
	if o.stage == envAttack || o.stage == envDecay || o.stage == envSustain {
		return
	}
	o.phase = 0
	o.stage = envAttack
}

func (o *operator) keyOff() {
	if o.stage != envOff {
		o.stage = envRelease
	}
}

// rateStep returns the dB change per sample for a four bit or five bit
// chip rate, after key scaling.
func rateStep(rate uint8, twice bool, ks uint8, kc int, sampleRate float64) float64 {
	if rate == 0 {
		return 0
	}
	r := int(rate)
	if !twice {
		r = r*2 + 1
	} else {
		r *= 2
	}
	r += kc >> (3 - ks)
	if r > 63 {
		r = 63
	}
	seconds := rateBaseSeconds * math.Pow(2, -float64(r)/4)
	return maxAttenuation / (seconds * sampleRate)
}

func (o *operator) advanceEnvelope(kc int, sampleRate float64) {
	switch o.stage {
	case envAttack:
		if o.ar >= 31 {
			o.level = 0
		} else {
			o.level -= attackSpeedup * rateStep(o.ar, true, o.ks, kc, sampleRate)
		}
		if o.level <= 0 {
			o.level = 0
			o.stage = envDecay
		}
	case envDecay:
		o.level += rateStep(o.d1r, true, o.ks, kc, sampleRate)
		sl := float64(o.d1l) * slStep
		if o.d1l == 15 {
			sl = maxAttenuation
		}
		if o.level >= sl {
			o.level = sl
			o.stage = envSustain
		}
	case envSustain:
		o.level += rateStep(o.d2r, true, o.ks, kc, sampleRate)
	case envRelease:
		o.level += rateStep(o.rr, false, o.ks, kc, sampleRate)
	}
	if o.level >= maxAttenuation {
		o.level = maxAttenuation
		if o.stage == envRelease || o.stage == envSustain {
			o.stage = envOff
		}
	}
}

// output computes one operator sample in [-1, 1] with phase modulation in
// cycles.
func (o *operator) output(mod float64) float64 {
	att := o.level + float64(o.tl)*tlStep
	var out float64
	if o.stage != envOff && att < maxAttenuation {
		out = math.Sin(2*math.Pi*(o.phase+mod)) * math.Pow(10, -att/20)
	}
	o.prev[1] = o.prev[0]
	o.prev[0] = out
	return out
}

func (c *channel) feedbackMod() float64 {
	if c.feedback == 0 {
		return 0
	}
	op := &c.ops[0]
	return (op.prev[0] + op.prev[1]) * math.Pow(2, float64(c.feedback)-7)
}

// sample runs one step of the channel and returns the carrier sum. The
// operators are in register order, so slots S1 S2 S3 S4 are ops 0 2 1 3.
func (c *channel) sample(sampleRate float64) float64 {
	kc := keyCode(c.freq)
	for j := range c.ops {
		op := &c.ops[j]
		op.advanceEnvelope(kc, sampleRate)
		op.phase += op.inc
		op.phase -= math.Floor(op.phase)
	}
	s1op, s2op, s3op, s4op := &c.ops[0], &c.ops[2], &c.ops[1], &c.ops[3]
	const d = modulationDepth

	fb := c.feedbackMod()
	var out float64
	switch c.connection & 7 {
	case 0:
		s1 := s1op.output(fb)
		s2 := s2op.output(d * s1)
		s3 := s3op.output(d * s2)
		out = s4op.output(d * s3)
	case 1:
		s1 := s1op.output(fb)
		s2 := s2op.output(0)
		s3 := s3op.output(d * (s1 + s2) / 2)
		out = s4op.output(d * s3)
	case 2:
		s1 := s1op.output(fb)
		s2 := s2op.output(0)
		s3 := s3op.output(d * s2)
		out = s4op.output(d * (s1 + s3) / 2)
	case 3:
		s1 := s1op.output(fb)
		s2 := s2op.output(d * s1)
		s3 := s3op.output(0)
		out = s4op.output(d * (s2 + s3) / 2)
	case 4:
		s1 := s1op.output(fb)
		s3 := s3op.output(0)
		out = s2op.output(d*s1) + s4op.output(d*s3)
	case 5:
		s1 := s1op.output(fb)
		out = s2op.output(d*s1) + s3op.output(d*s1) + s4op.output(d*s1)
	case 6:
		s1 := s1op.output(fb)
		out = s2op.output(d*s1) + s3op.output(0) + s4op.output(0)
	case 7:
		out = s1op.output(fb) + s2op.output(0) + s3op.output(0) + s4op.output(0)
	}
	return out
}

// render mixes every enabled channel into left and right.
func (e *engine) render(left, right []int32) {
	n := min(len(left), len(right))
	for i := 0; i < n; i++ {
		var l, r int32
		for c := range e.ch {
			ch := &e.ch[c]
			v := int32(ch.sample(e.sampleRate) * channelScale)
			if !ch.enabled {
				continue
			}
			v = clamp(v, -channelLimit, channelLimit)
			if ch.left {
				l += v
			}
			if ch.right {
				r += v
			}
		}
		left[i] = e.out[0].process(l)
		right[i] = e.out[1].process(r)
	}
}

// sounding reports whether any operator of ch has an active envelope.
func (e *engine) sounding(ch int) bool {
	for j := range e.ch[ch].ops {
		if e.ch[ch].ops[j].stage != envOff {
			return true
		}
	}
	return false
}

// setKeys keys operators of ch on or off from a register order mask.
func (e *engine) setKeys(ch int, mask uint8) {
	c := &e.ch[ch]
	for j := range c.ops {
		if mask&(1<<j) != 0 {
			c.ops[j].keyOn()
		} else {
			c.ops[j].keyOff()
		}
	}
}
