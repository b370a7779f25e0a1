package health

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CheckType represents the type of camera check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
)

// Result represents the outcome of one check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is implemented by every probe of the capture pipeline
type Checker interface {
	// Check performs the check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of check
	Type() CheckType
}

// Config controls how often a Monitor checks and how failures are counted
type Config struct {
	// Interval is the time between checks
	Interval time.Duration

	// Timeout bounds a single check
	Timeout time.Duration

	// Retries is the number of consecutive failures before the camera is
	// reported down
	Retries int

	// StartPeriod is a grace period during which failures are not counted,
	// giving the capture process time to open the device
	StartPeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Second,
		Timeout:     3 * time.Second,
		Retries:     3,
		StartPeriod: 0,
	}
}

// Status tracks consecutive results for one checker
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
}

// NewStatus creates a Status that starts out unhealthy; the camera is not
// reported ready until a check has passed
func NewStatus(now time.Time) *Status {
	return &Status{StartedAt: now}
}

// Update folds result into the status. One success marks it healthy;
// Retries consecutive failures mark it unhealthy.
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveSuccesses = 0
	if s.InStartPeriod(config, result.CheckedAt) {
		return
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= max(config.Retries, 1) {
		s.Healthy = false
	}
}

// InStartPeriod reports whether now is still inside the startup grace period
func (s *Status) InStartPeriod(config Config, now time.Time) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return now.Sub(s.StartedAt) < config.StartPeriod
}

// Parse builds a checker from a target string:
//
//	http://127.0.0.1:8081/stream.mjpg  GET, status and content type checked
//	tcp://127.0.0.1:8554               connect only
//	exec:v4l2-ctl --list-devices       exit status of a host command
func Parse(target string, timeout time.Duration) (Checker, error) {
	target = strings.TrimSpace(target)
	if cmd, ok := strings.CutPrefix(target, "exec:"); ok {
		args := strings.Fields(cmd)
		if len(args) == 0 {
			return nil, fmt.Errorf("camera check %q: empty command", target)
		}
		return NewExecChecker(args).WithTimeout(timeout), nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("camera check %q: %w", target, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("camera check %q: missing host", target)
		}
		return NewHTTPChecker(target).WithTimeout(timeout), nil
	case "tcp":
		if u.Port() == "" {
			return nil, fmt.Errorf("camera check %q: missing port", target)
		}
		return NewTCPChecker(u.Host).WithTimeout(timeout), nil
	default:
		return nil, fmt.Errorf("camera check %q: unsupported scheme %q", target, u.Scheme)
	}
}
