package metrics

import (
	"errors"
	"net/http"

	"github.com/andrebq/sealgate/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts auth outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry      *prometheus.Registry
	handler       http.Handler
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sealgate_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sealgate_registrations_total",
		Help: "Registration attempts by outcome.",
	}, []string{"outcome"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sealgate_session_resolutions_total",
		Help: "Finished session resolutions by state.",
	}, []string{"state"})
	registry.MustRegister(logins, registrations, resolutions)
	return &Metrics{
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logins:        logins,
		registrations: registrations,
		resolutions:   resolutions,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Login(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Register(err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Resolution(state auth.State) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(state.String()).Inc()
}

// Outcome maps an auth error to a low cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, new(auth.ValidationError)):
		return "invalid_input"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrThrottled):
		return "throttled"
	case errors.Is(err, auth.ErrRegistrationClosed):
		return "closed"
	case errors.Is(err, auth.ErrAlreadyExists):
		return "exists"
	case errors.Is(err, auth.ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "error"
}
