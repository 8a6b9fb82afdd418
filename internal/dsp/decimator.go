package dsp

// Block is one decimated output: the mean demodulated value and the mean
// I/Q magnitude of the raw samples it covers.
type Block struct {
	Value     float64
	Magnitude float64
}

// Decimator boxcar-averages runs of Factor raw I/Q pairs through the
// channel filter and demodulator. Raw bytes that do not make a full block
// are carried over to the next Push, so the output does not depend on how
// the stream was chunked.
type Decimator struct {
	factor int
	filter *ChannelFilter
	demod  *Demodulator

	carry   []byte
	scratch []byte
}

// DecimationFactor returns floor(nativeRate/targetRate), at least 1.
func DecimationFactor(nativeRate, targetRate int) int {
	if targetRate <= 0 || nativeRate < targetRate {
		return 1
	}
	return nativeRate / targetRate
}

// NewDecimator wires a decimator to the filter and demodulator it drives.
func NewDecimator(factor int, filter *ChannelFilter, demod *Demodulator) *Decimator {
	if factor < 1 {
		factor = 1
	}
	return &Decimator{factor: factor, filter: filter, demod: demod}
}

// Factor returns the number of raw samples per block.
func (d *Decimator) Factor() int {
	return d.factor
}

// Pending returns the number of carried bytes.
func (d *Decimator) Pending() int {
	return len(d.carry)
}

// Reset drops carried bytes.
func (d *Decimator) Reset() {
	d.carry = d.carry[:0]
}

// Push consumes chunk and appends one Block per completed block to out.
func (d *Decimator) Push(chunk []byte, out []Block) []Block {
	d.scratch = append(append(d.scratch[:0], d.carry...), chunk...)
	data := d.scratch

	blockBytes := 2 * d.factor
	complete := len(data) / blockBytes
	for b := 0; b < complete; b++ {
		raw := data[b*blockBytes : (b+1)*blockBytes]

		var valueSum, magSum float64
		for k := 0; k < len(raw); k += 2 {
			i := float64(raw[k]) - 127.5
			q := float64(raw[k+1]) - 127.5
			fi, fq := d.filter.Process(i, q)
			v, m := d.demod.Demodulate(fi, fq)
			valueSum += v
			magSum += m
		}
		out = append(out, Block{
			Value:     valueSum / float64(d.factor),
			Magnitude: magSum / float64(d.factor),
		})
	}

	d.carry = append(d.carry[:0], data[complete*blockBytes:]...)
	return out
}
