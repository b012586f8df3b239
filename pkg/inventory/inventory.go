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

// Package inventory holds the in-memory model of the fabric topology.
//
// An Inventory is an arena owned by a single caller. It is built once from a
// fabric snapshot and then patched through the Notify* methods so that a
// multi-step plan does not have to reload the topology after every step.
// Inventories are not safe for concurrent mutation; use Copy to hand an
// independent instance to another goroutine.
package inventory

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
)

// Inventory indexes devices, groups and machines by id and name.
type Inventory struct {
	devices      map[string]*DeviceItem
	deviceByName map[string]string

	groups      map[string]*Group
	groupByName map[string]string

	machines      map[string]*Machine
	machineByName map[string]string

	groupDevices   map[string]sets.Set[string]
	machineDevices map[string]sets.Set[string]
}

// New returns an empty inventory.
func New() *Inventory {
	return &Inventory{
		devices:        map[string]*DeviceItem{},
		deviceByName:   map[string]string{},
		groups:         map[string]*Group{},
		groupByName:    map[string]string{},
		machines:       map[string]*Machine{},
		machineByName:  map[string]string{},
		groupDevices:   map[string]sets.Set[string]{},
		machineDevices: map[string]sets.Set[string]{},
	}
}

// Copy returns an inventory whose relations can be mutated independently.
// Device facts, groups and machines are shared since they never change in
// place.
func (inv *Inventory) Copy() *Inventory {
	out := &Inventory{
		devices:        make(map[string]*DeviceItem, len(inv.devices)),
		deviceByName:   copyMap(inv.deviceByName),
		groups:         copyMap(inv.groups),
		groupByName:    copyMap(inv.groupByName),
		machines:       copyMap(inv.machines),
		machineByName:  copyMap(inv.machineByName),
		groupDevices:   make(map[string]sets.Set[string], len(inv.groupDevices)),
		machineDevices: make(map[string]sets.Set[string], len(inv.machineDevices)),
	}
	for id, d := range inv.devices {
		out.devices[id] = d.clone()
	}
	for id, s := range inv.groupDevices {
		out.groupDevices[id] = s.Clone()
	}
	for id, s := range inv.machineDevices {
		out.machineDevices[id] = s.Clone()
	}
	return out
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Device returns the device with the given id.
func (inv *Inventory) Device(id string) (*DeviceItem, bool) {
	d, ok := inv.devices[id]
	return d, ok
}

// DeviceByName returns the device with the given name.
func (inv *Inventory) DeviceByName(name string) (*DeviceItem, bool) {
	id, ok := inv.deviceByName[name]
	if !ok {
		return nil, false
	}
	return inv.Device(id)
}

// Group returns the group with the given id.
func (inv *Inventory) Group(id string) (*Group, bool) {
	g, ok := inv.groups[id]
	return g, ok
}

// GroupByName returns the group with the given name.
func (inv *Inventory) GroupByName(name string) (*Group, bool) {
	id, ok := inv.groupByName[name]
	if !ok {
		return nil, false
	}
	return inv.Group(id)
}

// Machine returns the machine with the given id.
func (inv *Inventory) Machine(id string) (*Machine, bool) {
	m, ok := inv.machines[id]
	return m, ok
}

// MachineByName returns the machine with the given name.
func (inv *Inventory) MachineByName(name string) (*Machine, bool) {
	id, ok := inv.machineByName[name]
	if !ok {
		return nil, false
	}
	return inv.Machine(id)
}

// MachineDeviceIDs returns the ids of devices attached to the machine.
func (inv *Inventory) MachineDeviceIDs(machineID string) sets.Set[string] {
	return inv.machineDevices[machineID].Clone()
}

// MachineDevices returns the devices attached to the machine, sorted by name.
func (inv *Inventory) MachineDevices(machineID string) []*DeviceItem {
	return inv.itemsOf(inv.machineDevices[machineID])
}

// GroupDevices returns the devices attached to the group, sorted by name.
func (inv *Inventory) GroupDevices(groupID string) []*DeviceItem {
	return inv.itemsOf(inv.groupDevices[groupID])
}

// Unassigned returns the ids of devices that belong to a group but to no
// machine. An empty groupID selects every group.
func (inv *Inventory) Unassigned(groupID string) sets.Set[string] {
	out := sets.New[string]()
	collect := func(ids sets.Set[string]) {
		for id := range ids {
			if inv.devices[id].MachineID == "" {
				out.Insert(id)
			}
		}
	}
	if groupID != "" {
		collect(inv.groupDevices[groupID])
		return out
	}
	for _, ids := range inv.groupDevices {
		collect(ids)
	}
	return out
}

// Devices returns all devices sorted by name.
func (inv *Inventory) Devices() []*DeviceItem {
	out := make([]*DeviceItem, 0, len(inv.devices))
	for _, d := range inv.devices {
		out = append(out, d)
	}
	sortDevices(out)
	return out
}

// Groups returns all groups sorted by name.
func (inv *Inventory) Groups() []*Group {
	out := make([]*Group, 0, len(inv.groups))
	for _, g := range inv.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Machines returns all machines sorted by name.
func (inv *Inventory) Machines() []*Machine {
	out := make([]*Machine, 0, len(inv.machines))
	for _, m := range inv.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DeviceNames maps ids to names in the order of the sorted names.
func (inv *Inventory) DeviceNames(ids sets.Set[string]) []string {
	items := inv.itemsOf(ids)
	out := make([]string, 0, len(items))
	for _, d := range items {
		out = append(out, d.Name)
	}
	return out
}

func (inv *Inventory) itemsOf(ids sets.Set[string]) []*DeviceItem {
	out := make([]*DeviceItem, 0, len(ids))
	for id := range ids {
		if d, ok := inv.devices[id]; ok {
			out = append(out, d)
		}
	}
	sortDevices(out)
	return out
}

func sortDevices(items []*DeviceItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
}

// Verify checks every relation and index invariant.
func (inv *Inventory) Verify() error {
	const op = "verify inventory"
	for id, d := range inv.devices {
		if d.GroupID != "" {
			if _, ok := inv.groups[d.GroupID]; !ok {
				return failure.Inconsistent(op, "device %q references unknown group %q", id, d.GroupID)
			}
			if !inv.groupDevices[d.GroupID].Has(id) {
				return failure.Inconsistent(op, "device %q missing from group index %q", id, d.GroupID)
			}
		}
		if d.MachineID == "" {
			continue
		}
		m, ok := inv.machines[d.MachineID]
		if !ok {
			return failure.Inconsistent(op, "device %q references unknown machine %q", id, d.MachineID)
		}
		if d.GroupID != m.GroupID {
			return failure.Inconsistent(op, "device %q attached to machine %q outside its group %q", id, m.Name, m.GroupID)
		}
		if !inv.machineDevices[d.MachineID].Has(id) {
			return failure.Inconsistent(op, "device %q missing from machine index %q", id, d.MachineID)
		}
	}
	for gid, ids := range inv.groupDevices {
		for id := range ids {
			if d, ok := inv.devices[id]; !ok || d.GroupID != gid {
				return failure.Inconsistent(op, "stale group index entry %q/%q", gid, id)
			}
		}
	}
	for mid, ids := range inv.machineDevices {
		for id := range ids {
			if d, ok := inv.devices[id]; !ok || d.MachineID != mid {
				return failure.Inconsistent(op, "stale machine index entry %q/%q", mid, id)
			}
		}
	}
	for id, m := range inv.machines {
		if _, ok := inv.groups[m.GroupID]; !ok {
			return failure.Inconsistent(op, "machine %q references unknown group %q", id, m.GroupID)
		}
	}
	return nil
}
