package enforcement

import "sync"

// Estimator produces conservative usage estimates for pre-flight cost
// checks. The one rule: it must not systematically underestimate.
//
// When the caller supplies an output upper bound, that bound is used
// as-is. Otherwise the estimator falls back to a per-(provider, model)
// running average of observed output sizes, inflated by a multiplier
// and floored at a minimum, so a cold or optimistic average still
// cannot pull the estimate below a conservative baseline.
type Estimator struct {
	multiplier float64
	minOutput  int64

	mu   sync.Mutex
	avgs map[string]*runningAvg
}

type runningAvg struct {
	count int64
	mean  float64
}

// NewEstimator creates an estimator. multiplier must be >= 1 and scales
// the running-average fallback; minOutput floors it.
func NewEstimator(multiplier float64, minOutput int64) *Estimator {
	if multiplier < 1 {
		multiplier = 1
	}
	if minOutput <= 0 {
		minOutput = 1024
	}
	return &Estimator{
		multiplier: multiplier,
		minOutput:  minOutput,
		avgs:       make(map[string]*runningAvg),
	}
}

// EstimateOutput returns the output-unit estimate for a request.
// maxOutput, when positive, is the caller's declared upper bound and is
// trusted directly.
func (e *Estimator) EstimateOutput(provider, model string, maxOutput int64) int64 {
	if maxOutput > 0 {
		return maxOutput
	}

	e.mu.Lock()
	avg, ok := e.avgs[provider+"/"+model]
	var mean float64
	if ok {
		mean = avg.mean
	}
	e.mu.Unlock()

	est := int64(mean * e.multiplier)
	if est < e.minOutput {
		est = e.minOutput
	}
	return est
}

// Observe feeds an actual output size back into the running average.
// The cost recorder calls this for every completed request.
func (e *Estimator) Observe(provider, model string, outputUnits int64) {
	if outputUnits < 0 {
		return
	}

	key := provider + "/" + model

	e.mu.Lock()
	avg, ok := e.avgs[key]
	if !ok {
		avg = &runningAvg{}
		e.avgs[key] = avg
	}
	avg.count++
	avg.mean += (float64(outputUnits) - avg.mean) / float64(avg.count)
	e.mu.Unlock()
}
