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

// Package layout derives per-machine resource counts from an inventory.
package layout

import (
	"sort"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

// MachineProfile is the allocatable content of one machine.
type MachineProfile struct {
	MachineID   string
	MachineName string
	NodeName    string
	Profile     resource.Profile
}

// ClusterLayout is a point-in-time view of resource counts. It is never
// updated on its own; build a new one from the inventory instead.
type ClusterLayout struct {
	Group      string
	Machines   map[string]*MachineProfile
	Unassigned resource.Profile
}

// CreateFromInventory classifies every non-compute device of every machine,
// plus the non-compute devices sitting unassigned in the group. An empty
// groupID covers the whole inventory.
func CreateFromInventory(inv *inventory.Inventory, groupID string) *ClusterLayout {
	out := &ClusterLayout{
		Group:      groupID,
		Machines:   map[string]*MachineProfile{},
		Unassigned: resource.NewProfile(),
	}
	for _, m := range inv.Machines() {
		if groupID != "" && m.GroupID != groupID {
			continue
		}
		mp := &MachineProfile{
			MachineID:   m.ID,
			MachineName: m.Name,
			NodeName:    m.NodeName,
			Profile:     resource.NewProfile(),
		}
		for _, d := range inv.MachineDevices(m.ID) {
			if d.Type.Allocatable() {
				mp.Profile.InjectDevice(d)
			}
		}
		out.Machines[m.Name] = mp
	}
	for id := range inv.Unassigned(groupID) {
		d, _ := inv.Device(id)
		if d.Type.Allocatable() {
			out.Unassigned.InjectDevice(d)
		}
	}
	return out
}

// Machine returns the profile of a machine by name.
func (l *ClusterLayout) Machine(name string) (*MachineProfile, bool) {
	mp, ok := l.Machines[name]
	return mp, ok
}

// MachineNames returns the machine names in sorted order.
func (l *ClusterLayout) MachineNames() []string {
	out := make([]string, 0, len(l.Machines))
	for name := range l.Machines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Flatten sums every machine profile and the unassigned profile.
func (l *ClusterLayout) Flatten() resource.Profile {
	out := resource.NewProfile()
	for _, mp := range l.Machines {
		out.Merge(mp.Profile)
	}
	out.Merge(l.Unassigned)
	return out
}

// CheckDemand verifies that the total demand fits into the total supply of
// the layout.
func (l *ClusterLayout) CheckDemand(demand map[string]resource.Profile) error {
	total := resource.NewProfile()
	for name, p := range demand {
		if _, ok := l.Machines[name]; !ok {
			return failure.Invalid("check demand", "machine %q is not part of the layout", name)
		}
		for m, n := range p {
			if n < 0 {
				return failure.Invalid("check demand", "machine %q requests a negative count of %s", name, m)
			}
		}
		total.Merge(p)
	}
	if missing := resource.Shortfall(l.Flatten(), total); len(missing) > 0 {
		return failure.Invalid("check demand", "demand exceeds supply by %s", missing)
	}
	return nil
}
