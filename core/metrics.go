package core

// Metrics records engine outcomes for operators.
type Metrics interface {
	AccessDecision(reason string)
	EnrollmentCreated(source string)
	FulfillmentFailure()
}

type nopMetrics struct{}

// NopMetrics discards everything.
func NopMetrics() Metrics { return &nopMetrics{} }

func (nopMetrics) AccessDecision(string)    {}
func (nopMetrics) EnrollmentCreated(string) {}
func (nopMetrics) FulfillmentFailure()      {}
