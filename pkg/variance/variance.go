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

// Package variance computes the per-machine difference between the current
// and the desired device membership and turns it into plan actions.
//
// A device can only move from the unassigned pool of its group into a
// machine. Variances whose additions are all unassigned are synthesized
// first; when none is, a variance that both adds and removes is split into
// its removal and its addition so that the removal frees devices for others.
package variance

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/plan"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

// Variance is the delta of one machine, by device id.
type Variance struct {
	MachineID string
	Gaining   sets.Set[string]
	Losing    sets.Set[string]
}

// Mixed reports whether the variance both adds and removes devices.
func (v *Variance) Mixed() bool {
	return v.Gaining.Len() > 0 && v.Losing.Len() > 0
}

// Empty reports whether the machine already has its desired devices.
func (v *Variance) Empty() bool {
	return v.Gaining.Len() == 0 && v.Losing.Len() == 0
}

func (v *Variance) size() int {
	return v.Gaining.Len() + v.Losing.Len()
}

// bifurcate splits a mixed variance into its removal and its addition.
func (v *Variance) bifurcate() (*Variance, *Variance) {
	remove := &Variance{MachineID: v.MachineID, Gaining: sets.New[string](), Losing: v.Losing.Clone()}
	add := &Variance{MachineID: v.MachineID, Gaining: v.Gaining.Clone(), Losing: sets.New[string]()}
	return remove, add
}

// VarianceSet is the ordered work list of variances. It is owned by the call
// that created it.
type VarianceSet struct {
	variances []*Variance
	// budget bounds the remaining iterations of the resolution loop.
	budget int
	log    logr.Logger
}

type options struct {
	log logr.Logger
}

// Option configures variance resolution.
type Option func(*options)

// WithLogger sets the logger used while resolving variances.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// CreateVarianceSet compares the machines named in desired with inv. Compute
// devices never move: a machine may list its own compute device, any other
// compute device is rejected.
func CreateVarianceSet(inv *inventory.Inventory, desired Assignment, opts ...Option) (*VarianceSet, error) {
	const op = "create variance set"
	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	owner := map[string]string{}
	for _, name := range desired.Machines() {
		for device := range desired[name] {
			if prev, ok := owner[device]; ok {
				return nil, failure.Invalid(op, "device %q is desired by machines %q and %q", device, prev, name)
			}
			owner[device] = name
		}
	}

	set := &VarianceSet{log: o.log}
	devices := 0
	for _, name := range desired.Machines() {
		m, ok := inv.MachineByName(name)
		if !ok {
			return nil, failure.Inconsistent(op, "machine %q not found", name)
		}

		want := sets.New[string]()
		for _, deviceName := range sets.List(desired[name]) {
			d, ok := inv.DeviceByName(deviceName)
			if !ok {
				return nil, failure.Inconsistent(op, "device %q desired by machine %q not found", deviceName, name)
			}
			if d.Type == resource.CPU {
				if d.MachineID != m.ID {
					return nil, failure.Invalid(op, "compute device %q cannot be moved to machine %q", deviceName, name)
				}
				continue
			}
			if d.MachineID != "" && d.MachineID != m.ID {
				holder, ok := inv.Machine(d.MachineID)
				if !ok {
					return nil, failure.Inconsistent(op, "device %q references unknown machine %q", deviceName, d.MachineID)
				}
				if _, ok := desired[holder.Name]; !ok {
					return nil, failure.Invalid(op, "device %q is held by machine %q which has no desired state", deviceName, holder.Name)
				}
			}
			if d.GroupID != "" && d.GroupID != m.GroupID {
				return nil, failure.Invalid(op, "device %q is not in the group of machine %q", deviceName, name)
			}
			want.Insert(d.ID)
		}

		have := sets.New[string]()
		for _, d := range inv.MachineDevices(m.ID) {
			if d.Type.Allocatable() {
				have.Insert(d.ID)
			}
		}

		v := &Variance{MachineID: m.ID, Gaining: want.Difference(have), Losing: have.Difference(want)}
		if v.Empty() {
			continue
		}
		set.variances = append(set.variances, v)
		devices += v.size()
	}

	set.budget = devices + 3*len(set.variances) + 1
	return set, nil
}

// Len returns the number of variances still to resolve.
func (s *VarianceSet) Len() int {
	return len(s.variances)
}

// Variances returns copies of the pending variances in resolution order.
func (s *VarianceSet) Variances() []Variance {
	out := make([]Variance, 0, len(s.variances))
	for _, v := range s.variances {
		out = append(out, Variance{MachineID: v.MachineID, Gaining: v.Gaining.Clone(), Losing: v.Losing.Clone()})
	}
	return out
}

// NextAction returns the next action of the plan, or nil once the set is
// drained. unassigned is the working pool of device ids attached to no
// machine; it is updated for the returned action. A set that cannot advance
// fails with an InternalInvariantViolation.
func (s *VarianceSet) NextAction(inv *inventory.Inventory, unassigned sets.Set[string]) (plan.Action, error) {
	const op = "resolve variances"
	for {
		if len(s.variances) == 0 {
			return nil, nil
		}
		if s.budget <= 0 {
			s.logState(inv, unassigned)
			return nil, failure.Internal(op, "iteration bound exceeded with %d variances left", len(s.variances))
		}
		s.budget--

		idx, action, err := s.firstSatisfiable(inv, unassigned)
		if err != nil {
			return nil, err
		}
		if idx >= 0 {
			s.variances = append(s.variances[:idx], s.variances[idx+1:]...)
			if action.Kind() == plan.KindNoOperation {
				continue
			}
			return action, nil
		}

		if !s.bifurcateFirstMixed() {
			s.logState(inv, unassigned)
			return nil, failure.Internal(op, "no variance can advance: %s", s.describe(inv))
		}
	}
}

func (s *VarianceSet) firstSatisfiable(inv *inventory.Inventory, unassigned sets.Set[string]) (int, plan.Action, error) {
	for i, v := range s.variances {
		if !unassigned.IsSuperset(v.Gaining) {
			continue
		}
		a, err := synthesize(inv, v)
		if err != nil {
			return -1, nil, err
		}
		unassigned.Insert(v.Losing.UnsortedList()...)
		unassigned.Delete(v.Gaining.UnsortedList()...)
		return i, a, nil
	}
	return -1, nil, nil
}

func (s *VarianceSet) bifurcateFirstMixed() bool {
	for i, v := range s.variances {
		if !v.Mixed() {
			continue
		}
		remove, add := v.bifurcate()
		rest := append([]*Variance{remove, add}, s.variances[i+1:]...)
		s.variances = append(s.variances[:i], rest...)
		s.log.V(1).Info("split variance to break a dependency cycle", "machine", v.MachineID,
			"removing", v.Losing.Len(), "adding", v.Gaining.Len())
		return true
	}
	return false
}

func synthesize(inv *inventory.Inventory, v *Variance) (plan.Action, error) {
	if v.Empty() {
		return plan.NoOperation{}, nil
	}
	m, ok := inv.Machine(v.MachineID)
	if !ok {
		return nil, failure.Internal("synthesize action", "machine %q vanished from the inventory", v.MachineID)
	}
	switch {
	case v.Losing.Len() == 0:
		return plan.AssignToMachine{MachineName: m.Name, DeviceNames: inv.DeviceNames(v.Gaining)}, nil
	case v.Gaining.Len() == 0:
		return plan.RemoveFromMachine{MachineName: m.Name, NodeName: m.NodeName, DeviceNames: inv.DeviceNames(v.Losing)}, nil
	default:
		return plan.ReconfigureMachine{
			MachineName:       m.Name,
			NodeName:          m.NodeName,
			AddDeviceNames:    inv.DeviceNames(v.Gaining),
			RemoveDeviceNames: inv.DeviceNames(v.Losing),
		}, nil
	}
}

func (s *VarianceSet) describe(inv *inventory.Inventory) string {
	parts := make([]string, 0, len(s.variances))
	for _, v := range s.variances {
		name := v.MachineID
		if m, ok := inv.Machine(v.MachineID); ok {
			name = m.Name
		}
		parts = append(parts, fmt.Sprintf("%s{+%s -%s}", name,
			strings.Join(inv.DeviceNames(v.Gaining), ","), strings.Join(inv.DeviceNames(v.Losing), ",")))
	}
	return strings.Join(parts, " ")
}

func (s *VarianceSet) logState(inv *inventory.Inventory, unassigned sets.Set[string]) {
	s.log.Info("variance resolution cannot advance",
		"variances", s.describe(inv),
		"unassigned", inv.DeviceNames(unassigned),
		"budget", s.budget)
}
