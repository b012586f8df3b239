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

// Package manager runs one reconciliation pass: snapshot the fabric, plan
// the moves towards the desired state and execute them.
package manager

import (
	"context"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/config"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/layout"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/monitoring/metrics"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/plan"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/variance"
)

var Log = ctrl.Log.WithName("fabric-reconciler")

const (
	assignmentMachine = "machine"
	assignmentGroup   = "group"
	assignmentFree    = "free"
)

// Deps are the collaborators of a run.
type Deps struct {
	Fabric  ports.Fabric
	Cluster ports.Cluster
	Log     logr.Logger
}

// Run plans the desired state against a fresh snapshot and executes the
// plan unless cfg.Planning.DryRun is set. The plan is returned in both cases.
func Run(ctx context.Context, deps Deps, cfg config.System, desired *config.Desired) (*plan.Plan, error) {
	log := deps.Log
	if log.GetSink() == nil {
		log = Log
	}

	inv, err := inventory.Load(ctx, deps.Fabric)
	if err != nil {
		return nil, err
	}
	if err := linkNodes(ctx, deps.Cluster, cfg.Cluster.LinkageRecord, inv, !cfg.Planning.DryRun, log); err != nil {
		return nil, err
	}
	reportInventory(inv)

	entries, err := resolveEntries(inv, cfg.Planning.Group, desired)
	if err != nil {
		return nil, err
	}
	assignment, err := variance.NewAssignment(entries...)
	if err != nil {
		return nil, err
	}
	p, err := variance.Build(inv, assignment, variance.WithLogger(log.WithName("variance")))
	if err != nil {
		return nil, err
	}

	steps := p.Describe()
	log.Info("plan computed", "steps", len(steps), "dryRun", cfg.Planning.DryRun)
	for i, line := range steps {
		log.Info("planned step", "step", i+1, "description", line)
	}
	if cfg.Planning.DryRun || p.Len() == 0 {
		return p, nil
	}

	err = p.Execute(ctx, deps.Fabric, deps.Cluster,
		plan.WithLogger(log.WithName("executor")),
		plan.WithInventory(inv),
		plan.WithReporter(func(step, total int, _ string) {
			metrics.PlanProgressSet(step, total)
		}),
	)
	if err != nil {
		return p, err
	}
	log.Info("plan executed", "steps", p.Len())
	return p, nil
}

// linkNodes applies the machine to node linkage record to machines the
// fabric reports without a node. With write set the merged record is stored
// back.
func linkNodes(ctx context.Context, cluster ports.Cluster, record string, inv *inventory.Inventory, write bool, log logr.Logger) error {
	if record == "" {
		return nil
	}
	links, err := cluster.ReadConfigRecord(ctx, record)
	if err != nil {
		return failure.Comm("read linkage record", err)
	}

	for machineName, node := range links {
		node = strings.TrimSpace(node)
		m, ok := inv.MachineByName(machineName)
		if !ok {
			log.V(1).Info("linkage record names unknown machine", "machine", machineName)
			continue
		}
		switch {
		case node == "":
		case m.NodeName == "":
			if err := inv.LinkMachineToNode(m.ID, node); err != nil {
				return err
			}
		case m.NodeName != node:
			log.Info("fabric node name differs from linkage record", "machine", machineName, "fabric", m.NodeName, "record", node)
		}
	}

	merged := make(map[string]string, len(links))
	for _, m := range inv.Machines() {
		if m.NodeName != "" {
			merged[m.Name] = m.NodeName
		}
	}
	if !write || mapsEqual(links, merged) {
		return nil
	}
	if err := cluster.WriteConfigRecord(ctx, record, merged); err != nil {
		return failure.Comm("write linkage record", err)
	}
	return nil
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func reportInventory(inv *inventory.Inventory) {
	type key struct {
		deviceType resource.GeneralType
		assignment string
	}
	counts := map[key]int{}
	for _, t := range resource.AllTypes {
		for _, a := range []string{assignmentMachine, assignmentGroup, assignmentFree} {
			counts[key{t, a}] = 0
		}
	}
	for _, d := range inv.Devices() {
		a := assignmentFree
		switch {
		case d.MachineID != "":
			a = assignmentMachine
		case d.GroupID != "":
			a = assignmentGroup
		}
		counts[key{d.Type, a}]++
	}
	metrics.InventoryDevicesReset()
	for k, n := range counts {
		metrics.InventoryDevicesSet(string(k.deviceType), k.assignment, n)
	}
}

// resolveEntries turns explicit device lists and per-model profiles into
// one list of entries. Profiles are allocated inside the group of each
// machine from devices no explicit list names; group, when set, is the only
// group a profile may target.
func resolveEntries(inv *inventory.Inventory, group string, desired *config.Desired) ([]variance.Entry, error) {
	const op = "resolve desired state"
	if desired == nil {
		return nil, nil
	}
	entries := desired.Entries()
	profiles, err := desired.Profiles()
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return entries, nil
	}

	groupID := ""
	if group != "" {
		g, ok := inv.GroupByName(group)
		if !ok {
			return nil, failure.Invalid(op, "group %q does not exist", group)
		}
		groupID = g.ID
	}

	byGroup := map[string]map[string]resource.Profile{}
	for name, p := range profiles {
		m, ok := inv.MachineByName(name)
		if !ok {
			return nil, failure.Inconsistent(op, "machine %q does not exist", name)
		}
		if groupID != "" && m.GroupID != groupID {
			return nil, failure.Invalid(op, "machine %q is not in group %q", name, group)
		}
		if byGroup[m.GroupID] == nil {
			byGroup[m.GroupID] = map[string]resource.Profile{}
		}
		byGroup[m.GroupID][name] = p
	}

	reserved := sets.New[string]()
	for _, e := range entries {
		reserved.Insert(e.Devices...)
	}

	groupIDs := make([]string, 0, len(byGroup))
	for id := range byGroup {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)
	for _, id := range groupIDs {
		allocated, err := layout.Allocate(inv, id, byGroup[id], reserved)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(allocated))
		for name := range allocated {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			entries = append(entries, variance.Entry{Machine: name, Devices: allocated[name]})
		}
	}
	return entries, nil
}
