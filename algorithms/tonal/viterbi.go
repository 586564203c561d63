package tonal

import (
	"math"
)

// findPath runs the Viterbi search over the frame candidates and returns the
// chosen candidate per frame. Local strengths are rewarded; octave jumps
// and voicing transitions between neighbouring frames are penalised. Costs
// are expressed per 10 ms so that the time step does not change the path.
func (pt *PitchTracker) findPath(frames []pitchFrame, dt float64) []PitchCandidate {
	p := pt.params
	if len(frames) == 0 {
		return nil
	}

	correction := 0.01 / dt
	jumpCost := p.OctaveJumpCost * correction
	switchCost := p.VoicedUnvoicedCost * correction

	local := func(f pitchFrame, c PitchCandidate) float64 {
		if c.Frequency <= 0 {
			unvoiced := 2.0
			if p.SilenceThreshold > 0 {
				unvoiced = 2 - f.intensity/(p.SilenceThreshold/(1+p.VoicingThreshold))
			}
			return p.VoicingThreshold + math.Max(0, unvoiced)
		}
		return c.Strength - p.OctaveCost*math.Log2(p.Ceiling/c.Frequency)
	}

	transition := func(prev, cur PitchCandidate) float64 {
		prevVoiced := prev.Frequency > 0
		curVoiced := cur.Frequency > 0
		switch {
		case !prevVoiced && !curVoiced:
			return 0
		case prevVoiced != curVoiced:
			return switchCost
		default:
			return jumpCost * math.Abs(math.Log2(prev.Frequency/cur.Frequency))
		}
	}

	delta := make([][]float64, len(frames))
	psi := make([][]int, len(frames))

	delta[0] = make([]float64, len(frames[0].candidates))
	psi[0] = make([]int, len(frames[0].candidates))
	for k, c := range frames[0].candidates {
		delta[0][k] = local(frames[0], c)
	}

	for i := 1; i < len(frames); i++ {
		prev := frames[i-1].candidates
		cur := frames[i].candidates
		delta[i] = make([]float64, len(cur))
		psi[i] = make([]int, len(cur))

		for k, c := range cur {
			best := math.Inf(-1)
			bestPrev := 0
			for j, pc := range prev {
				v := delta[i-1][j] - transition(pc, c)
				if v > best {
					best = v
					bestPrev = j
				}
			}
			delta[i][k] = best + local(frames[i], c)
			psi[i][k] = bestPrev
		}
	}

	last := len(frames) - 1
	place := 0
	for k := range delta[last] {
		if delta[last][k] > delta[last][place] {
			place = k
		}
	}

	path := make([]PitchCandidate, len(frames))
	for i := last; i >= 0; i-- {
		path[i] = frames[i].candidates[place]
		place = psi[i][place]
	}

	return path
}
