// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics counts object store activity.
type metrics struct {
	lookups       prometheus.Counter // resolutions requested
	hits          prometheus.Counter // resolutions served by the backend
	misses        prometheus.Counter // resolutions the backend could not serve
	fetches       prometheus.Counter // remote fetches started
	fetchFailures prometheus.Counter // remote fetches that failed or did not verify
	memoHits      prometheus.Counter // memoized values reused
}

func newMetrics(reg prometheus.Registerer) *metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrap",
			Subsystem: "store",
			Name:      name,
			Help:      help,
		})
	}
	m := &metrics{
		lookups:       counter("lookups_total", "Number of hash references resolved."),
		hits:          counter("hits_total", "Number of resolutions served locally."),
		misses:        counter("misses_total", "Number of resolutions not found locally."),
		fetches:       counter("fetches_total", "Number of remote fetches."),
		fetchFailures: counter("fetch_failures_total", "Number of remote fetches that failed or did not verify."),
		memoHits:      counter("memo_hits_total", "Number of memoized values reused."),
	}
	if reg != nil {
		reg.MustRegister(m.lookups, m.hits, m.misses, m.fetches, m.fetchFailures, m.memoHits)
	}
	return m
}
