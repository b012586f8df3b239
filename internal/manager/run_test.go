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

package manager

import (
	"context"
	"sort"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/config"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports/fake"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

func newFabric() *fake.Fabric {
	return fake.NewFabric().
		AddGroup("g1", "pool-a").
		AddGroup("g2", "pool-b").
		AddMachine("m1", "machine-1", "g1", "").
		AddMachine("m2", "machine-2", "g2", "node-2").
		AddDevice("c1", "cpu-1", resource.CPU, "amd", "epyc", "g1", "m1").
		AddDevice("c2", "cpu-2", resource.CPU, "amd", "epyc", "g2", "m2").
		AddDevice("d1", "gpu-1", resource.GPU, "nvidia", "A100", "g1", "").
		AddDevice("d2", "ssd-1", resource.SSD, "intel", "p5800", "g1", "m1").
		AddDevice("d3", "gpu-2", resource.GPU, "nvidia", "A100", "g2", "")
}

func newCluster(t *testing.T) *fake.Cluster {
	t.Helper()
	c := fake.NewCluster()
	err := c.WriteConfigRecord(context.Background(), config.DefaultLinkageRecord, map[string]string{
		"machine-1": "node-1",
		"ghost":     "node-x",
	})
	if err != nil {
		t.Fatalf("seed linkage record: %v", err)
	}
	return c
}

func testSystem() config.System {
	cfg := config.DefaultSystem()
	cfg.Fabric.Endpoint = "https://fabric.local"
	return cfg
}

func parseDesired(t *testing.T, data string) *config.Desired {
	t.Helper()
	d, err := config.ParseDesired([]byte(data))
	if err != nil {
		t.Fatalf("parse desired: %v", err)
	}
	return d
}

func gaugeValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := ctrlmetrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestRunExecutesProfilePlan(t *testing.T) {
	fabric := newFabric()
	cluster := newCluster(t)
	desired := parseDesired(t, `
machines:
  - name: machine-1
    profile:
      - model: gpu/nvidia
        count: 1
`)

	p, err := Run(context.Background(), Deps{Fabric: fabric, Cluster: cluster, Log: testr.New(t)}, testSystem(), desired)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"Reconfigure machine machine-1 (node node-1): add gpu-1, remove ssd-1"}
	if diff := cmp.Diff(want, p.Describe()); diff != "" {
		t.Fatalf("unexpected plan (-want +got):\n%s", diff)
	}
	if got := fabric.RelationOf("d1").MachineID; got != "m1" {
		t.Fatalf("gpu-1 should be on m1, got %q", got)
	}
	if got := fabric.RelationOf("d2").MachineID; got != "" {
		t.Fatalf("ssd-1 should be released, got %q", got)
	}
	if cluster.CallCount("Cordon") != 1 || cluster.CallCount("Uncordon") != 1 || cluster.CallCount("Evict") != 1 {
		t.Fatalf("expected node-1 to be drained once, calls %v", cluster.Calls())
	}
	if cluster.Cordoned("node-1") {
		t.Fatal("node-1 must be schedulable after the run")
	}

	record, err := cluster.ReadConfigRecord(context.Background(), config.DefaultLinkageRecord)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	wantRecord := map[string]string{"machine-1": "node-1", "machine-2": "node-2"}
	if diff := cmp.Diff(wantRecord, record); diff != "" {
		t.Fatalf("unexpected linkage record (-want +got):\n%s", diff)
	}

	if v := gaugeValue(t, "fabric_inventory_devices", map[string]string{"type": "GPU", "assignment": "group"}); v != 2 {
		t.Fatalf("expected 2 pooled GPUs in the snapshot, got %v", v)
	}
	if v := gaugeValue(t, "fabric_inventory_devices", map[string]string{"type": "CPU", "assignment": "machine"}); v != 2 {
		t.Fatalf("expected 2 bound CPUs, got %v", v)
	}
	if v := gaugeValue(t, "fabric_plan_steps", map[string]string{"state": "current"}); v != 1 {
		t.Fatalf("expected progress at step 1, got %v", v)
	}
}

func TestRunDryRunOnlyPlans(t *testing.T) {
	fabric := newFabric()
	cluster := newCluster(t)
	cfg := testSystem()
	cfg.Planning.DryRun = true
	desired := parseDesired(t, "machines:\n  - name: machine-2\n    devices: [gpu-2]\n")

	p, err := Run(context.Background(), Deps{Fabric: fabric, Cluster: cluster, Log: testr.New(t)}, cfg, desired)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{"Assign gpu-2 to machine machine-2"}, p.Describe()); diff != "" {
		t.Fatalf("unexpected plan (-want +got):\n%s", diff)
	}
	if n := fabric.CallCount("BeginMachineEdit"); n != 0 {
		t.Fatalf("dry run must not edit the fabric, got %d edits", n)
	}
	if n := cluster.CallCount("Cordon"); n != 0 {
		t.Fatalf("dry run must not cordon, got %d", n)
	}
	// One write from the seed, none from the run.
	if n := cluster.CallCount("WriteConfigRecord"); n != 1 {
		t.Fatalf("dry run must not rewrite the linkage record, got %d writes", n)
	}
}

func TestRunProfilesAvoidExplicitDevices(t *testing.T) {
	fabric := newFabric().
		AddMachine("m3", "machine-3", "g1", "node-3").
		AddDevice("c3", "cpu-3", resource.CPU, "amd", "epyc", "g1", "m3").
		AddDevice("d4", "gpu-3", resource.GPU, "nvidia", "T4", "g1", "")
	cfg := testSystem()
	cfg.Planning.DryRun = true
	desired := parseDesired(t, `
machines:
  - name: machine-1
    devices: [gpu-1]
  - name: machine-3
    profile:
      - model: gpu
        count: 1
`)

	p, err := Run(context.Background(), Deps{Fabric: fabric, Cluster: newCluster(t), Log: testr.New(t)}, cfg, desired)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := p.Describe()
	sort.Strings(got)
	want := []string{
		"Assign gpu-3 to machine machine-3",
		"Reconfigure machine machine-1 (node node-1): add gpu-1, remove ssd-1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected plan (-want +got):\n%s", diff)
	}
}

func TestRunWithoutChanges(t *testing.T) {
	fabric := newFabric()
	desired := parseDesired(t, "machines:\n  - name: machine-1\n    devices: [ssd-1]\n")

	p, err := Run(context.Background(), Deps{Fabric: fabric, Cluster: newCluster(t)}, testSystem(), desired)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expected empty plan, got %v", p.Describe())
	}
}

func TestRunRejectsProfilesOutsideGroup(t *testing.T) {
	cfg := testSystem()
	cfg.Planning.Group = "pool-a"
	desired := parseDesired(t, "machines:\n  - name: machine-2\n    profile:\n      - model: gpu\n        count: 1\n")

	_, err := Run(context.Background(), Deps{Fabric: newFabric(), Cluster: newCluster(t), Log: testr.New(t)}, cfg, desired)
	if !failure.Is(err, failure.InvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}

	cfg.Planning.Group = "pool-z"
	_, err = Run(context.Background(), Deps{Fabric: newFabric(), Cluster: newCluster(t), Log: testr.New(t)}, cfg, desired)
	if !failure.Is(err, failure.InvalidConfiguration) {
		t.Fatalf("expected unknown group to be rejected, got %v", err)
	}
}

func TestRunRejectsProfileForUnknownMachine(t *testing.T) {
	desired := parseDesired(t, "machines:\n  - name: machine-9\n    profile:\n      - model: gpu\n        count: 1\n")

	_, err := Run(context.Background(), Deps{Fabric: newFabric(), Cluster: newCluster(t), Log: testr.New(t)}, testSystem(), desired)
	if !failure.Is(err, failure.DataInconsistency) {
		t.Fatalf("expected data inconsistency, got %v", err)
	}
}

func TestRunReportsLinkageFailure(t *testing.T) {
	cluster := fake.NewCluster().FailOn("ReadConfigRecord")

	_, err := Run(context.Background(), Deps{Fabric: newFabric(), Cluster: cluster, Log: testr.New(t)}, testSystem(), nil)
	if !failure.Is(err, failure.Communication) {
		t.Fatalf("expected communication failure, got %v", err)
	}
}
