package apu

import "math"

// pulseTable and tndTable are the NES's nonlinear mixer lookup tables:
// the analog mixer sums each group's DAC outputs through a resistor
// network rather than a simple linear adder, so the two groups (pulse,
// triangle+noise+DMC) each need their own small table rather than one
// shared volume-to-amplitude curve.
var pulseTable [31]float64
var tndTable [203]float64

func init() {
	for i := range pulseTable {
		if i == 0 {
			continue
		}
		pulseTable[i] = 95.88 / (8128.0/float64(i) + 100.0)
	}
	for tri := 0; tri <= 15; tri++ {
		for noise := 0; noise <= 15; noise++ {
			for dmc := 0; dmc <= 127; dmc++ {
				idx := tri*3 + noise*2 + dmc
				if idx >= len(tndTable) || tndTable[idx] != 0 {
					continue
				}
				sum := float64(tri)/8227.0 + float64(noise)/12241.0 + float64(dmc)/22638.0
				if sum == 0 {
					continue
				}
				tndTable[idx] = 159.79 / (1.0/sum + 100.0)
			}
		}
	}
}

// smoothKernel is a 33-tap windowed-sinc low-pass applied to the
// decimated output stream, smoothing the stairstep left behind by the
// boxcar decimation in Mixer.feed.
const kernelTaps = 33

var smoothKernel [kernelTaps]float64

func init() {
	const cutoff = 0.45 // relative to the decimated (output) sample rate
	center := float64(kernelTaps-1) / 2
	var sum float64
	for i := 0; i < kernelTaps; i++ {
		x := float64(i) - center
		var s float64
		if x == 0 {
			s = 2 * cutoff
		} else {
			s = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		// Hann window.
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(kernelTaps-1))
		smoothKernel[i] = s * w
		sum += smoothKernel[i]
	}
	for i := range smoothKernel {
		smoothKernel[i] /= sum
	}
}

// Mixer decimates the APU's internal 1.79MHz amplitude stream down to
// the host sample rate (boxcar-averaging each output sample's worth of
// cycles, then running the result through the 33-tap smoothing kernel
// above and a single-pole high-pass integrator) and applies the fixed
// stereo mix matrix.
type Mixer struct {
	sampleRate    int
	biasedClock   float64
	cyclesPerSample float64
	cycleAccum    float64

	sumNative float64
	sumExt    float64
	count     int

	historyNative [kernelTaps]float64
	historyExt    [kernelTaps]float64
	histPos       int
	histFilled    int

	hpPrevNative, hpOutNative float64
	hpPrevExt, hpOutExt       float64

	extGain float64

	out []int16
	stereo bool
}

func (m *Mixer) init(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	m.sampleRate = sampleRate
	m.biasedClock = cpuClockNTSC
	m.cyclesPerSample = cpuClockNTSC / float64(sampleRate)
	m.cycleAccum = 0
	m.sumNative, m.sumExt = 0, 0
	m.count = 0
	m.histPos, m.histFilled = 0, 0
	m.hpPrevNative, m.hpOutNative = 0, 0
	m.hpPrevExt, m.hpOutExt = 0, 0
	m.extGain = 0.16
	m.out = m.out[:0]
}

func (m *Mixer) rebias(delta float64) {
	m.biasedClock += delta
	if m.biasedClock < cpuClockNTSC-20000 {
		m.biasedClock = cpuClockNTSC - 20000
	}
	if m.biasedClock > cpuClockNTSC+20000 {
		m.biasedClock = cpuClockNTSC + 20000
	}
	m.cyclesPerSample = m.biasedClock / float64(m.sampleRate)
}

// feed accumulates one CPU cycle's worth of native and expansion
// amplitude and, once enough cycles have accumulated for one output
// sample, decimates and pushes a sample (or stereo pair) to out.
func (m *Mixer) feed(native, ext float64) {
	m.sumNative += native
	m.sumExt += ext
	m.count++
	m.cycleAccum++

	if m.cycleAccum < m.cyclesPerSample {
		return
	}
	m.cycleAccum -= m.cyclesPerSample

	avgNative := m.sumNative / float64(m.count)
	avgExt := m.sumExt / float64(m.count)
	m.sumNative, m.sumExt, m.count = 0, 0, 0

	m.pushHistory(avgNative, avgExt)
	smNative := m.applyKernel(m.historyNative[:])
	smExt := m.applyKernel(m.historyExt[:])

	outNative := m.highpass(&m.hpPrevNative, &m.hpOutNative, smNative)
	outExt := m.highpass(&m.hpPrevExt, &m.hpOutExt, smExt)

	m.emit(outNative, outExt)
}

func (m *Mixer) pushHistory(native, ext float64) {
	m.historyNative[m.histPos] = native
	m.historyExt[m.histPos] = ext
	m.histPos = (m.histPos + 1) % kernelTaps
	if m.histFilled < kernelTaps {
		m.histFilled++
	}
}

func (m *Mixer) applyKernel(history []float64) float64 {
	var sum float64
	for i := 0; i < kernelTaps; i++ {
		idx := (m.histPos + i) % kernelTaps
		sum += history[idx] * smoothKernel[i]
	}
	return sum
}

// highpass implements the 2A03's single-pole DC-blocking filter with a
// shift-14 time constant, matching the hardware's own output stage.
func (m *Mixer) highpass(prevIn, out *float64, in float64) float64 {
	const factor = 1.0 - 1.0/16384.0
	result := in - *prevIn + *out*factor
	*prevIn = in
	*out = result
	return result
}

func clampSample(v float64) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

func (m *Mixer) emit(native, ext float64) {
	if m.stereoEnabled() {
		l := 1.65 * (0.65*native + 0.35*ext)
		r := 1.65 * (0.65*ext + 0.35*native)
		m.out = append(m.out, clampSample(l), clampSample(r))
		return
	}
	m.out = append(m.out, clampSample(native+ext))
}

// stereoEnabled reports the stereo setting that the containing APU
// copies from its config in New, SetConfig and Reset; kept here rather
// than threading Config through every call.
func (m *Mixer) stereoEnabled() bool { return m.stereo }

func (m *Mixer) take() []int16 {
	out := m.out
	m.out = nil
	return out
}
