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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestActionObserve(t *testing.T) {
	before := testutil.ToFloat64(planActions.WithLabelValues("AssignToMachine", ResultSuccess))
	failedBefore := testutil.ToFloat64(planActions.WithLabelValues("AssignToMachine", ResultFailure))

	ActionObserve("AssignToMachine", time.Now(), nil)
	ActionObserve("AssignToMachine", time.Now(), errors.New("boom"))
	ActionObserve("", time.Now(), nil)

	if v := testutil.ToFloat64(planActions.WithLabelValues("AssignToMachine", ResultSuccess)); v != before+1 {
		t.Fatalf("expected success counter %v, got %v", before+1, v)
	}
	if v := testutil.ToFloat64(planActions.WithLabelValues("AssignToMachine", ResultFailure)); v != failedBefore+1 {
		t.Fatalf("expected failure counter %v, got %v", failedBefore+1, v)
	}
	if count := testutil.CollectAndCount(planStepDuration); count == 0 {
		t.Fatal("expected step duration to be observed")
	}
}

func TestRollbackInc(t *testing.T) {
	before := testutil.ToFloat64(planRollbacks.WithLabelValues("CancelMachineEdit", ResultFailure))
	RollbackInc("CancelMachineEdit", errors.New("boom"))
	RollbackInc("", nil)
	if v := testutil.ToFloat64(planRollbacks.WithLabelValues("CancelMachineEdit", ResultFailure)); v != before+1 {
		t.Fatalf("expected rollback counter %v, got %v", before+1, v)
	}
}

func TestInventoryDevices(t *testing.T) {
	InventoryDevicesReset()
	InventoryDevicesSet("GPU", "machine", 3)
	InventoryDevicesSet("", "machine", 1)

	if v := testutil.ToFloat64(inventoryDevices.WithLabelValues("GPU", "machine")); v != 3 {
		t.Fatalf("expected gauge 3, got %v", v)
	}
	if count := testutil.CollectAndCount(inventoryDevices); count != 1 {
		t.Fatalf("expected a single series, got %d", count)
	}
	InventoryDevicesReset()
	if count := testutil.CollectAndCount(inventoryDevices); count != 0 {
		t.Fatalf("expected reset to drop series, got %d", count)
	}
}

func TestPlanProgressSet(t *testing.T) {
	PlanProgressSet(2, 5)

	if v := testutil.ToFloat64(planSteps.WithLabelValues("current")); v != 2 {
		t.Fatalf("expected current step 2, got %v", v)
	}
	if v := testutil.ToFloat64(planSteps.WithLabelValues("total")); v != 5 {
		t.Fatalf("expected total 5, got %v", v)
	}
}
