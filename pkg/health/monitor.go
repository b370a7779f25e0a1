package health

import (
	"context"
	"time"

	"github.com/cuemby/lookout/pkg/log"
)

// ReportFunc receives every change of the monitored health
type ReportFunc func(healthy bool, message string)

// Monitor runs a checker on an interval and reports transitions
type Monitor struct {
	checker Checker
	config  Config
	report  ReportFunc
	status  *Status
}

// NewMonitor creates a monitor. report is called once with the first
// result and again whenever the healthy state flips.
func NewMonitor(checker Checker, config Config, report ReportFunc) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Monitor{
		checker: checker,
		config:  config,
		report:  report,
		status:  NewStatus(time.Now()),
	}
}

// Run checks until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	logger := log.WithComponent("camera-check")
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	first := true
	for {
		prev := m.status.Healthy
		m.RunOnce(ctx)
		if first || m.status.Healthy != prev {
			res := m.status.LastResult
			logger.Info().
				Str("type", string(m.checker.Type())).
				Bool("healthy", m.status.Healthy).
				Str("message", res.Message).
				Msg("Camera check state changed")
			m.report(m.status.Healthy, res.Message)
			first = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one check and folds it into the status
func (m *Monitor) RunOnce(ctx context.Context) Result {
	checkCtx := ctx
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}
	res := m.checker.Check(checkCtx)
	m.status.Update(res, m.config)
	return res
}
