package obs

import "context"

// CheckResult is the outcome of a single named health check.
type CheckResult struct {
	Healthy bool
	Message string
}

// HealthStatus aggregates every named check's result. Defined here, not in
// the root package, so obs has no dependency on the root package — the
// teacher's equivalent type lived in the root package and obs imported it,
// which created a circular import once the root package needed obs for
// metrics and circuit breakers.
type HealthStatus struct {
	Status string
	Checks map[string]*CheckResult
}

// Prober reports the live state HealthChecker needs, so obs doesn't need to
// import the coordinator package to check it.
type Prober interface {
	BufferFillRatio() float64
	DrainWorkerAlive() bool
	LastSnapshotAge() (seconds float64, ok bool)
}

// HealthChecker runs the standard set of checks against a Prober.
type HealthChecker struct {
	p Prober
}

// NewHealthChecker creates a health checker bound to p.
func NewHealthChecker(p Prober) *HealthChecker {
	return &HealthChecker{p: p}
}

// Check runs every check and aggregates the result.
func (hc *HealthChecker) Check(ctx context.Context) (*HealthStatus, error) {
	checks := map[string]*CheckResult{
		"buffer_fill":  hc.checkBufferFill(),
		"drain_worker": hc.checkDrainWorker(),
		"snapshot_lag": hc.checkSnapshotAge(),
	}
	status := "healthy"
	for _, c := range checks {
		if !c.Healthy {
			status = "degraded"
			break
		}
	}
	return &HealthStatus{Status: status, Checks: checks}, nil
}

func (hc *HealthChecker) checkBufferFill() *CheckResult {
	ratio := hc.p.BufferFillRatio()
	if ratio >= 0.95 {
		return &CheckResult{Healthy: false, Message: "flat buffer near capacity"}
	}
	return &CheckResult{Healthy: true, Message: "buffer fill nominal"}
}

func (hc *HealthChecker) checkDrainWorker() *CheckResult {
	if !hc.p.DrainWorkerAlive() {
		return &CheckResult{Healthy: false, Message: "background drain worker not running"}
	}
	return &CheckResult{Healthy: true, Message: "drain worker alive"}
}

func (hc *HealthChecker) checkSnapshotAge() *CheckResult {
	age, ok := hc.p.LastSnapshotAge()
	if !ok {
		return &CheckResult{Healthy: true, Message: "no snapshot taken yet"}
	}
	if age > 3600 {
		return &CheckResult{Healthy: false, Message: "last snapshot older than one hour"}
	}
	return &CheckResult{Healthy: true, Message: "snapshot age nominal"}
}
