package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// mustRegister регистрирует коллектор или возвращает уже зарегистрированный
// с тем же описанием. Повторное создание TicketMetrics в тестах не паникует.
func mustRegister[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("collector %q already registered with unexpected type %T", name, already.ExistingCollector))
	}
	return existing
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return mustRegister(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return mustRegister(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return mustRegister(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}
