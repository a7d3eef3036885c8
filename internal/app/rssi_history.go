package app

// rssiHistory keeps a rolling window of smoothed RSSI samples per
// device, oldest first, feeding the detail panel sparkline.
type rssiHistory struct {
	window int
	trails map[string][]float64
}

func newRSSIHistory(window int) *rssiHistory {
	return &rssiHistory{
		window: window,
		trails: make(map[string][]float64),
	}
}

// Record appends one sample to the device's trail. The oldest sample
// falls off once the window is full.
func (h *rssiHistory) Record(mac string, rssi float64) {
	trail := append(h.trails[mac], rssi)
	if len(trail) > h.window {
		trail = trail[len(trail)-h.window:]
	}
	h.trails[mac] = trail
}

// Trail returns the device's samples in arrival order, nil for a
// device never sampled.
func (h *rssiHistory) Trail(mac string) []float64 {
	return h.trails[mac]
}
