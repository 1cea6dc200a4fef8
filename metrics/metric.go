// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalogdb"

var (
	Registry = prometheus.NewRegistry()

	DDLOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ddl_total",
			Help:      "catalog mutations by operation and result",
		},
		[]string{"op", "result"},
	)

	PrivilegeChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "privilege_checks_total",
			Help:      "privilege checks by result",
		},
		[]string{"result"},
	)

	FragmenterInstantiate = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fragmenter_instantiate_seconds",
			Help:      "time spent constructing table fragmenters",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)

	OpenCatalogs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_catalogs",
			Help:      "number of live database catalogs",
		},
	)
)

func init() {
	Registry.MustRegister(
		DDLOps,
		PrivilegeChecks,
		FragmenterInstantiate,
		OpenCatalogs,
	)
}

// ObserveDDL counts one mutation, err decides the result label.
func ObserveDDL(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DDLOps.WithLabelValues(op, result).Inc()
}

func ObservePrivilegeCheck(granted bool) {
	result := "granted"
	if !granted {
		result = "denied"
	}
	PrivilegeChecks.WithLabelValues(result).Inc()
}

func ObserveFragmenter(start time.Time) {
	FragmenterInstantiate.Observe(time.Since(start).Seconds())
}
