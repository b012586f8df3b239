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

package inventory

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
)

// NotifyDeviceAssignedToGroup records that a device joined a group. A device
// moving between groups loses its machine attachment.
func (inv *Inventory) NotifyDeviceAssignedToGroup(deviceID, groupID string) error {
	const op = "notify device assigned to group"
	d, ok := inv.devices[deviceID]
	if !ok {
		return failure.Inconsistent(op, "unknown device %q", deviceID)
	}
	if _, ok := inv.groups[groupID]; !ok {
		return failure.Inconsistent(op, "unknown group %q", groupID)
	}
	if d.GroupID == groupID {
		return nil
	}
	inv.detachMachine(d)
	inv.detachGroup(d)
	inv.attachGroup(d, groupID)
	return nil
}

// NotifyDeviceRemovedFromGroup records that a device left its group. Any
// machine attachment goes with it.
func (inv *Inventory) NotifyDeviceRemovedFromGroup(deviceID string) error {
	d, ok := inv.devices[deviceID]
	if !ok {
		return failure.Inconsistent("notify device removed from group", "unknown device %q", deviceID)
	}
	inv.detachMachine(d)
	inv.detachGroup(d)
	return nil
}

// NotifyDeviceAssignedToMachine records that a device was attached to a
// machine. The device joins the machine's group as well.
func (inv *Inventory) NotifyDeviceAssignedToMachine(deviceID, machineID string) error {
	const op = "notify device assigned to machine"
	d, ok := inv.devices[deviceID]
	if !ok {
		return failure.Inconsistent(op, "unknown device %q", deviceID)
	}
	m, ok := inv.machines[machineID]
	if !ok {
		return failure.Inconsistent(op, "unknown machine %q", machineID)
	}
	if d.MachineID == machineID {
		return nil
	}
	inv.detachMachine(d)
	if d.GroupID != m.GroupID {
		inv.detachGroup(d)
		inv.attachGroup(d, m.GroupID)
	}
	d.MachineID = machineID
	inv.index(inv.machineDevices, machineID).Insert(deviceID)
	return nil
}

// NotifyDeviceRemovedFromMachine records that a device was detached from its
// machine. The group attachment is kept.
func (inv *Inventory) NotifyDeviceRemovedFromMachine(deviceID string) error {
	d, ok := inv.devices[deviceID]
	if !ok {
		return failure.Inconsistent("notify device removed from machine", "unknown device %q", deviceID)
	}
	inv.detachMachine(d)
	return nil
}

// NotifyDeviceCreated adds a device to the inventory with the given relations.
func (inv *Inventory) NotifyDeviceCreated(facts DeviceFacts, groupID, machineID string) error {
	const op = "notify device created"
	if facts.ID == "" {
		return failure.Inconsistent(op, "device %q has no id", facts.Name)
	}
	if _, ok := inv.devices[facts.ID]; ok {
		return failure.Inconsistent(op, "device %q already exists", facts.ID)
	}
	if other, ok := inv.deviceByName[facts.Name]; ok && facts.Name != "" {
		return failure.Inconsistent(op, "device name %q already used by %q", facts.Name, other)
	}
	if machineID != "" {
		m, ok := inv.machines[machineID]
		if !ok {
			return failure.Inconsistent(op, "unknown machine %q", machineID)
		}
		if groupID != "" && groupID != m.GroupID {
			return failure.Inconsistent(op, "device %q: machine %q is not in group %q", facts.ID, machineID, groupID)
		}
		groupID = m.GroupID
	}
	if groupID != "" {
		if _, ok := inv.groups[groupID]; !ok {
			return failure.Inconsistent(op, "unknown group %q", groupID)
		}
	}

	f := facts
	d := &DeviceItem{DeviceFacts: &f}
	inv.devices[f.ID] = d
	if f.Name != "" {
		inv.deviceByName[f.Name] = f.ID
	}
	if groupID != "" {
		inv.attachGroup(d, groupID)
	}
	if machineID != "" {
		d.MachineID = machineID
		inv.index(inv.machineDevices, machineID).Insert(f.ID)
	}
	return nil
}

// NotifyDeviceRemoved drops a device from the inventory.
func (inv *Inventory) NotifyDeviceRemoved(deviceID string) error {
	d, ok := inv.devices[deviceID]
	if !ok {
		return failure.Inconsistent("notify device removed", "unknown device %q", deviceID)
	}
	inv.detachMachine(d)
	inv.detachGroup(d)
	delete(inv.devices, deviceID)
	if inv.deviceByName[d.Name] == deviceID {
		delete(inv.deviceByName, d.Name)
	}
	return nil
}

// NotifyGroupCreated adds an empty group.
func (inv *Inventory) NotifyGroupCreated(g Group) error {
	const op = "notify group created"
	if g.ID == "" {
		return failure.Inconsistent(op, "group %q has no id", g.Name)
	}
	if _, ok := inv.groups[g.ID]; ok {
		return failure.Inconsistent(op, "group %q already exists", g.ID)
	}
	if other, ok := inv.groupByName[g.Name]; ok {
		return failure.Inconsistent(op, "group name %q already used by %q", g.Name, other)
	}
	cp := g
	inv.groups[g.ID] = &cp
	inv.groupByName[g.Name] = g.ID
	return nil
}

// NotifyGroupRemoved drops a group, its machines, and every device relation
// pointing into it.
func (inv *Inventory) NotifyGroupRemoved(groupID string) error {
	g, ok := inv.groups[groupID]
	if !ok {
		return failure.Inconsistent("notify group removed", "unknown group %q", groupID)
	}
	for id, m := range inv.machines {
		if m.GroupID == groupID {
			inv.removeMachine(id)
		}
	}
	for id := range inv.groupDevices[groupID].Clone() {
		inv.detachGroup(inv.devices[id])
	}
	delete(inv.groupDevices, groupID)
	delete(inv.groups, groupID)
	if inv.groupByName[g.Name] == groupID {
		delete(inv.groupByName, g.Name)
	}
	return nil
}

// NotifyMachineCreated adds a machine to an existing group.
func (inv *Inventory) NotifyMachineCreated(m Machine) error {
	const op = "notify machine created"
	if m.ID == "" {
		return failure.Inconsistent(op, "machine %q has no id", m.Name)
	}
	if _, ok := inv.machines[m.ID]; ok {
		return failure.Inconsistent(op, "machine %q already exists", m.ID)
	}
	if other, ok := inv.machineByName[m.Name]; ok {
		return failure.Inconsistent(op, "machine name %q already used by %q", m.Name, other)
	}
	if _, ok := inv.groups[m.GroupID]; !ok {
		return failure.Inconsistent(op, "machine %q references unknown group %q", m.ID, m.GroupID)
	}
	cp := m
	inv.machines[m.ID] = &cp
	inv.machineByName[m.Name] = m.ID
	return nil
}

// NotifyMachineRemoved drops a machine. Its devices return to the group's
// unassigned pool.
func (inv *Inventory) NotifyMachineRemoved(machineID string) error {
	if _, ok := inv.machines[machineID]; !ok {
		return failure.Inconsistent("notify machine removed", "unknown machine %q", machineID)
	}
	inv.removeMachine(machineID)
	return nil
}

// LinkMachineToNode records the cluster node running on a machine.
func (inv *Inventory) LinkMachineToNode(machineID, nodeName string) error {
	m, ok := inv.machines[machineID]
	if !ok {
		return failure.Inconsistent("link machine to node", "unknown machine %q", machineID)
	}
	// Machines are shared between copies, replace instead of mutating.
	cp := *m
	cp.NodeName = nodeName
	inv.machines[machineID] = &cp
	return nil
}

func (inv *Inventory) removeMachine(machineID string) {
	for id := range inv.machineDevices[machineID].Clone() {
		inv.detachMachine(inv.devices[id])
	}
	m := inv.machines[machineID]
	delete(inv.machineDevices, machineID)
	delete(inv.machines, machineID)
	if inv.machineByName[m.Name] == machineID {
		delete(inv.machineByName, m.Name)
	}
}

func (inv *Inventory) attachGroup(d *DeviceItem, groupID string) {
	d.GroupID = groupID
	inv.index(inv.groupDevices, groupID).Insert(d.ID)
}

func (inv *Inventory) detachGroup(d *DeviceItem) {
	if d.GroupID == "" {
		return
	}
	if s, ok := inv.groupDevices[d.GroupID]; ok {
		s.Delete(d.ID)
	}
	d.GroupID = ""
}

func (inv *Inventory) detachMachine(d *DeviceItem) {
	if d.MachineID == "" {
		return
	}
	if s, ok := inv.machineDevices[d.MachineID]; ok {
		s.Delete(d.ID)
	}
	d.MachineID = ""
}

func (inv *Inventory) index(idx map[string]sets.Set[string], key string) sets.Set[string] {
	s, ok := idx[key]
	if !ok {
		s = sets.New[string]()
		idx[key] = s
	}
	return s
}
