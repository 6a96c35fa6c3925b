package devmetrics

// Winsorizer clips extreme values of one metric's sample before aggregation
type Winsorizer interface {
	Winsorize(field string, sample []float64) []float64
}

// NoopWinsorizer passes samples through unchanged
type NoopWinsorizer struct{}

// Winsorize returns sample as is
func (NoopWinsorizer) Winsorize(_ string, sample []float64) []float64 { return sample }
