package fmcore

const dcAdjustBufferLen = 512

// dcAdjuster removes the DC offset of a signal with a running average
// over the last dcAdjustBufferLen samples.
type dcAdjuster struct {
	buffer [dcAdjustBufferLen]int32
	pos    int
	sum    int32
}

func (d *dcAdjuster) reset() {
	*d = dcAdjuster{}
}

func (d *dcAdjuster) add(sample int32) {
	d.sum -= d.buffer[d.pos]
	d.sum += sample
	d.buffer[d.pos] = sample
	d.pos = (d.pos + 1) & (dcAdjustBufferLen - 1)
}

func (d *dcAdjuster) level() int32 {
	return d.sum / dcAdjustBufferLen
}

// lowPass is a three tap FIR smoothing the top of the spectrum.
type lowPass struct {
	prev [2]int32
}

func (l *lowPass) filter(in int32) int32 {
	out := (l.prev[0] >> 2) + (l.prev[1] >> 1) + (in >> 2)
	l.prev[0] = l.prev[1]
	l.prev[1] = in
	return out
}

// outputStage is the per side tail of the mixer.
type outputStage struct {
	dc     dcAdjuster
	lp     lowPass
	filter bool
}

func (o *outputStage) reset() {
	o.dc.reset()
	o.lp = lowPass{}
}

func (o *outputStage) process(in int32) int32 {
	o.dc.add(in)
	in -= o.dc.level()
	if o.filter {
		in = o.lp.filter(in)
	}
	return clamp(in, -outputLimit, outputLimit)
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
