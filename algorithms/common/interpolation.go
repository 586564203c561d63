package common

// ParabolicPeak fits a parabola through (-1, y1), (0, y2), (1, y3) and returns
// the offset of its vertex from the middle sample together with the vertex
// value. When the three points are collinear the middle sample is returned
// unchanged. The offset is clamped to [-1, 1] so a poorly conditioned fit
// never leaves the bracketing interval.
func ParabolicPeak(y1, y2, y3 float64) (offset, value float64) {
	a := (y1 - 2*y2 + y3) / 2
	b := (y3 - y1) / 2

	if a == 0 {
		return 0, y2
	}

	offset = Clamp(-b/(2*a), -1, 1)
	value = y2 + b*offset + a*offset*offset
	return offset, value
}

// RefineMaximum returns the parabolically interpolated maximum around data[i].
// Edge indices and non-concave neighbourhoods return the sample itself.
func RefineMaximum(data []float64, i int) (position, value float64) {
	if i <= 0 || i >= len(data)-1 {
		return float64(i), data[i]
	}
	y1, y2, y3 := data[i-1], data[i], data[i+1]
	if y1-2*y2+y3 >= 0 {
		return float64(i), y2
	}
	offset, v := ParabolicPeak(y1, y2, y3)
	return float64(i) + offset, v
}

// RefineMinimum returns the parabolically interpolated minimum around data[i].
// Edge indices and non-convex neighbourhoods return the sample itself.
func RefineMinimum(data []float64, i int) (position, value float64) {
	if i <= 0 || i >= len(data)-1 {
		return float64(i), data[i]
	}
	y1, y2, y3 := data[i-1], data[i], data[i+1]
	if y1-2*y2+y3 <= 0 {
		return float64(i), y2
	}
	offset, v := ParabolicPeak(y1, y2, y3)
	return float64(i) + offset, v
}
