package indicators

// ATR computes Wilder-smoothed Average True Range incrementally, seeded
// with the simple mean of the first Period true-range values. Grounded on
// the donor volatility.go's batch ATR, converted from "recompute the TR
// slice every call" to "fold one more TR into Wilder's recurrence".
type ATR struct {
	period    int
	prevClose float64
	haveFirst bool
	seed      []float64
	value     float64
	ready     bool
	// mean20 tracks a 20-bar SMA of ATR values, used by the risk sizer and
	// market-state layer as atr20DayMean.
	mean20 *ringWindow
}

// NewATR creates an ATR(period) accumulator with a trailing 20-bar mean of
// its own output.
func NewATR(period int) *ATR {
	return &ATR{period: period, mean20: newRingWindow(20)}
}

// ATRValue is the snapshot of ATR state after one Update.
type ATRValue struct {
	ATR        float64
	Mean20Day  float64
	Ready      bool
}

// Update feeds one more (high, low, close) bar.
func (a *ATR) Update(high, low, close float64) ATRValue {
	if !a.haveFirst {
		a.prevClose = close
		a.haveFirst = true
		return ATRValue{}
	}
	tr := maxf(high-low, maxf(absf(high-a.prevClose), absf(low-a.prevClose)))
	a.prevClose = close

	if !a.ready {
		a.seed = append(a.seed, tr)
		if len(a.seed) < a.period {
			return ATRValue{}
		}
		sum := 0.0
		for _, v := range a.seed {
			sum += v
		}
		a.value = sum / float64(a.period)
		a.ready = true
		a.seed = nil
	} else {
		n := float64(a.period)
		a.value = ((n-1)*a.value + tr) / n
	}

	a.mean20.push(a.value)
	return ATRValue{ATR: a.value, Mean20Day: a.mean20.mean(), Ready: true}
}

// Bollinger computes a fixed-window Bollinger Band incrementally: middle
// is the SMA of the window, band is numStdDev sample standard deviations,
// bandwidth is (upper-lower)/middle.
type Bollinger struct {
	window    *ringWindow
	numStdDev float64
}

// NewBollinger creates a Bollinger(period, numStdDev) accumulator.
func NewBollinger(period int, numStdDev float64) *Bollinger {
	return &Bollinger{window: newRingWindow(period), numStdDev: numStdDev}
}

// BollingerValue is the snapshot of Bollinger state after one Update.
type BollingerValue struct {
	Middle, Upper, Lower, Bandwidth float64
	Ready                            bool
}

// Update feeds one more close price.
func (b *Bollinger) Update(close float64) BollingerValue {
	b.window.push(close)
	if !b.window.full() {
		return BollingerValue{}
	}
	middle := b.window.mean()
	band := b.numStdDev * b.window.sampleStdDev()
	upper := middle + band
	lower := middle - band
	bandwidth := 0.0
	if middle != 0 {
		bandwidth = (upper - lower) / middle
	}
	return BollingerValue{Middle: middle, Upper: upper, Lower: lower, Bandwidth: bandwidth, Ready: true}
}
