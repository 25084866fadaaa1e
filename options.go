package keymanager

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Manager.
type Option func(*Manager)

// WithShareIndex sets the sharing subsystem consulted to find file owners.
// Without one, every file is treated as owned by its requester.
func WithShareIndex(shares ShareIndex) Option {
	return func(m *Manager) {
		if shares == nil {
			m.setErr(fmt.Errorf("keymanager: WithShareIndex: nil index"))
			return
		}
		m.shares = shares
	}
}

// WithInterceptionSwitch sets the switch disabled around every key write.
func WithInterceptionSwitch(sw InterceptionSwitch) Option {
	return func(m *Manager) {
		if sw == nil {
			m.setErr(fmt.Errorf("keymanager: WithInterceptionSwitch: nil switch"))
			return
		}
		m.sw = sw
	}
}

// WithLayout overrides DefaultLayout.
func WithLayout(layout Layout) Option {
	return func(m *Manager) {
		if layout.FilesDirName == "" || layout.KeysDirName == "" || layout.KeyFilesDirName == "" || layout.PublicKeysDir == "" {
			m.setErr(fmt.Errorf("keymanager: WithLayout: every directory name must be set"))
			return
		}
		m.layout = layout
	}
}

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSealer seals private keys at rest. Private keys written without a sealer
// cannot be read back through a Manager that has one, and vice versa.
func WithSealer(s *Sealer) Option {
	return func(m *Manager) {
		m.sealer = s
	}
}

// WithPublicKeyCache keeps up to size public keys in an LRU cache.
// SetPublicKey through the same Manager refreshes the cached entry.
func WithPublicKeyCache(size int) Option {
	return func(m *Manager) {
		if size <= 0 {
			m.setErr(fmt.Errorf("keymanager: WithPublicKeyCache: size must be positive, got %d", size))
			return
		}
		m.cacheSize = size
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) {
		if mp != nil {
			m.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracerProvider = tp
		}
	}
}

func (m *Manager) setErr(err error) {
	if m.err == nil {
		m.err = err
	}
}
