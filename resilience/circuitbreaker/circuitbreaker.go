// Package circuitbreaker stops calling a failing model backend for a while
// instead of piling requests onto it.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Execute while the circuit is open.
var ErrOpen = gobreaker.ErrOpenState

// Config holds the breaker settings.
type Config struct {
	Name        string        `json:"name" yaml:"name"`
	MaxRequests uint32        `json:"max_requests" yaml:"max_requests"` // allowed while half-open
	Interval    time.Duration `json:"interval" yaml:"interval"`         // closed-state count reset period
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`           // open-state duration

	// FailureThreshold is the failure ratio that trips the circuit once
	// MinRequests have been seen.
	FailureThreshold float64 `json:"failure_threshold" yaml:"failure_threshold"`
	MinRequests      uint32  `json:"min_requests" yaml:"min_requests"`
}

// DefaultConfig returns settings for a remote generation API.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a breaker from cfg.
func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuitbreaker: state changed",
				"circuit", name, "from", from.String(), "to", to.String())
		},
	}
	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs fn through the breaker. While the circuit is open it
// returns ErrOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() gobreaker.State { return cb.breaker.State() }

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}
