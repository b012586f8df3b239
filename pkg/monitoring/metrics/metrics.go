// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	planActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "plan",
		Name:      "actions_total",
		Help:      "Number of executed plan actions grouped by kind and result.",
	}, []string{"kind", "result"})

	planRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "plan",
		Name:      "rollbacks_total",
		Help:      "Number of rollback operations grouped by operation and result.",
	}, []string{"operation", "result"})

	planStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fabric",
		Subsystem: "plan",
		Name:      "step_duration_seconds",
		Help:      "Duration of plan steps grouped by kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	planSteps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabric",
		Subsystem: "plan",
		Name:      "steps",
		Help:      "Progress of the running plan: total steps and the step being executed.",
	}, []string{"state"})

	inventoryDevices = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabric",
		Subsystem: "inventory",
		Name:      "devices",
		Help:      "Number of fabric devices grouped by type and assignment.",
	}, []string{"type", "assignment"})
)

func init() {
	metrics.Registry.MustRegister(
		planActions,
		planRollbacks,
		planStepDuration,
		planSteps,
		inventoryDevices,
	)
}

func resultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// ActionObserve records the outcome of a single plan step.
func ActionObserve(kind string, started time.Time, err error) {
	if kind == "" {
		return
	}
	planActions.WithLabelValues(kind, resultLabel(err)).Inc()
	planStepDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// RollbackInc counts one rollback call and its result.
func RollbackInc(operation string, err error) {
	if operation == "" {
		return
	}
	planRollbacks.WithLabelValues(operation, resultLabel(err)).Inc()
}

// PlanProgressSet exposes the step a plan execution has reached.
func PlanProgressSet(step, total int) {
	planSteps.WithLabelValues("current").Set(float64(step))
	planSteps.WithLabelValues("total").Set(float64(total))
}

// InventoryDevicesSet sets the device count for a type and assignment.
func InventoryDevicesSet(deviceType, assignment string, count int) {
	if deviceType == "" || assignment == "" {
		return
	}
	inventoryDevices.WithLabelValues(deviceType, assignment).Set(float64(count))
}

// InventoryDevicesReset drops every inventory series before a new snapshot.
func InventoryDevicesReset() {
	inventoryDevices.Reset()
}
