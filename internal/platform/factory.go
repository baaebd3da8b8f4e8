package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"meetingsattendance/internal/config"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/metrics"
)

// Factory builds adapters for meetings. It owns one circuit breaker per platform so that
// repeated failures against one API stop hammering it without affecting the other.
type Factory struct {
	cfg      config.Platforms
	http     *http.Client
	breakers map[Name]*gobreaker.CircuitBreaker[[]RawParticipant]
}

var supported = []Name{Teams, Zoom}

// NewFactory returns a factory. A nil client gets one with cfg.HTTPTimeout.
func NewFactory(cfg config.Platforms, client *http.Client) *Factory {
	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	f := &Factory{
		cfg:      cfg,
		http:     client,
		breakers: make(map[Name]*gobreaker.CircuitBreaker[[]RawParticipant], len(supported)),
	}
	for _, name := range supported {
		f.breakers[name] = newBreaker(name)
	}
	return f
}

// Create selects the adapter for m.Platform (case-insensitive) and validates its
// configuration. Empty or unknown platforms fail with ErrInvalidData.
func (f *Factory) Create(m Meeting) (Adapter, error) {
	name := Name(strings.ToLower(strings.TrimSpace(m.Platform)))
	if name == "" {
		return nil, fmt.Errorf("%w: meeting platform not specified", ErrInvalidData)
	}

	var a Adapter
	switch name {
	case Teams:
		a = NewTeamsAdapter(f.cfg.Teams, m, f.http)
	case Zoom:
		a = NewZoomAdapter(f.cfg.Zoom, m, f.http)
	default:
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidData, m.Platform)
	}

	if err := a.ValidateConfiguration(); err != nil {
		return nil, err
	}
	return &guarded{Adapter: a, cb: f.breakers[name]}, nil
}

// SupportedPlatforms lists the platform names Create accepts.
func SupportedPlatforms() []string {
	out := make([]string, 0, len(supported))
	for _, n := range supported {
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}

// IsSupported reports whether Create would accept name.
func IsSupported(name string) bool {
	n := Name(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range supported {
		if s == n {
			return true
		}
	}
	return false
}

// guarded routes fetches through the platform's breaker.
type guarded struct {
	Adapter
	cb *gobreaker.CircuitBreaker[[]RawParticipant]
}

func (g *guarded) FetchAttendanceData(ctx context.Context, start, end int64) ([]RawParticipant, error) {
	name := string(g.Name())
	out, err := g.cb.Execute(func() ([]RawParticipant, error) {
		return g.Adapter.FetchAttendanceData(ctx, start, end)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.PlatformRequests.WithLabelValues(name, "rejected").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("platform", name).Msg("[CIRCUIT BREAKER] Request rejected")
		return nil, fmt.Errorf("%s API unavailable: %w", name, err)
	case err != nil:
		metrics.PlatformRequests.WithLabelValues(name, "failure").Inc()
		return nil, err
	}
	metrics.PlatformRequests.WithLabelValues(name, "success").Inc()
	return out, nil
}

func newBreaker(name Name) *gobreaker.CircuitBreaker[[]RawParticipant] {
	cbName := string(name) + "-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	return gobreaker.NewCircuitBreaker[[]RawParticipant](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Caller mistakes say nothing about the remote API's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrConfiguration) ||
				errors.Is(err, ErrInvalidData) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
