// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package operations

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	proposed prometheus.Counter
	approved prometheus.Counter
	executed prometheus.Counter
	rejected prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		proposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photon",
			Name:      "operations_proposed",
			Help:      "Number of operations seen for the first time",
		}),
		approved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photon",
			Name:      "operations_approved",
			Help:      "Number of operations that reached proof consensus",
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photon",
			Name:      "operations_executed",
			Help:      "Number of operations confirmed executed by watchers",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photon",
			Name:      "operations_rejected",
			Help:      "Number of rejected proposals",
		}),
	}
	for _, c := range []prometheus.Collector{m.proposed, m.approved, m.executed, m.rejected} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
