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

package plan

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/contracts"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

// Executor validates and performs one action kind.
type Executor interface {
	contracts.Named
	// Simulate checks that the action applies to inv and applies it.
	Simulate(inv *inventory.Inventory, a Action) error
	Execute(ctx context.Context, ec *ExecutionContext, a Action) error
}

type executor[A Action] struct {
	kind     Kind
	simulate func(*inventory.Inventory, A) error
	execute  func(context.Context, *ExecutionContext, A) error
}

func (e executor[A]) Name() string { return string(e.kind) }

func (e executor[A]) Simulate(inv *inventory.Inventory, a Action) error {
	typed, ok := a.(A)
	if !ok {
		return failure.Internal("simulate action", "%s executor cannot run %T", e.kind, a)
	}
	return e.simulate(inv, typed)
}

func (e executor[A]) Execute(ctx context.Context, ec *ExecutionContext, a Action) error {
	typed, ok := a.(A)
	if !ok {
		return failure.Internal("execute action", "%s executor cannot run %T", e.kind, a)
	}
	return e.execute(ctx, ec, typed)
}

var executors = newExecutorRegistry()

func newExecutorRegistry() *contracts.Registry[Executor] {
	r := contracts.NewRegistry[Executor]()
	r.Register(executor[AssignToMachine]{kind: KindAssignToMachine, simulate: simulateAssignToMachine, execute: executeAssignToMachine})
	r.Register(executor[RemoveFromMachine]{kind: KindRemoveFromMachine, simulate: simulateRemoveFromMachine, execute: executeRemoveFromMachine})
	r.Register(executor[ReconfigureMachine]{kind: KindReconfigureMachine, simulate: simulateReconfigureMachine, execute: executeReconfigureMachine})
	r.Register(executor[AssignToGroup]{kind: KindAssignToGroup, simulate: simulateAssignToGroup, execute: executeAssignToGroup})
	r.Register(executor[CreateGroup]{kind: KindCreateGroup, simulate: simulateCreateGroup, execute: executeCreateGroup})
	r.Register(executor[CreateMachine]{kind: KindCreateMachine, simulate: simulateCreateMachine, execute: executeCreateMachine})
	r.Register(executor[DeleteMachine]{kind: KindDeleteMachine, simulate: simulateDeleteMachine, execute: executeDeleteMachine})
	r.Register(executor[NoOperation]{
		kind:     KindNoOperation,
		simulate: func(*inventory.Inventory, NoOperation) error { return nil },
		execute:  func(context.Context, *ExecutionContext, NoOperation) error { return nil },
	})
	return r
}

func executorFor(a Action) (Executor, error) {
	if a == nil {
		return nil, failure.Internal("dispatch action", "nil action")
	}
	ex, ok := executors.Get(string(a.Kind()))
	if !ok {
		return nil, failure.Internal("dispatch action", "no executor for %s", a.Kind())
	}
	return ex, nil
}

// plannedID names entities that only exist in a simulated inventory.
func plannedID(name string) string {
	return "planned/" + name
}

func lookupMachine(inv *inventory.Inventory, op, name string) (*inventory.Machine, error) {
	m, ok := inv.MachineByName(name)
	if !ok {
		return nil, failure.Internal(op, "machine %q not found", name)
	}
	return m, nil
}

func lookupGroup(inv *inventory.Inventory, op, name string) (*inventory.Group, error) {
	g, ok := inv.GroupByName(name)
	if !ok {
		return nil, failure.Internal(op, "group %q not found", name)
	}
	return g, nil
}

func lookupDevices(inv *inventory.Inventory, op string, names []string) ([]*inventory.DeviceItem, error) {
	if len(names) == 0 {
		return nil, failure.Internal(op, "no devices given")
	}
	seen := sets.New[string]()
	out := make([]*inventory.DeviceItem, 0, len(names))
	for _, name := range names {
		if seen.Has(name) {
			return nil, failure.Internal(op, "device %q listed twice", name)
		}
		seen.Insert(name)
		d, ok := inv.DeviceByName(name)
		if !ok {
			return nil, failure.Internal(op, "device %q not found", name)
		}
		out = append(out, d)
	}
	return out, nil
}

func checkAttachable(op string, m *inventory.Machine, devs []*inventory.DeviceItem) error {
	for _, d := range devs {
		switch {
		case !d.Type.Allocatable():
			return failure.Internal(op, "compute device %q cannot be attached to machine %q", d.Name, m.Name)
		case d.MachineID != "":
			return failure.Internal(op, "device %q is still attached to a machine", d.Name)
		case d.GroupID != m.GroupID:
			return failure.Internal(op, "device %q is not in the group of machine %q", d.Name, m.Name)
		}
	}
	return nil
}

func checkDetachable(op string, m *inventory.Machine, devs []*inventory.DeviceItem) error {
	for _, d := range devs {
		switch {
		case !d.Type.Allocatable():
			return failure.Internal(op, "compute device %q cannot be detached from machine %q", d.Name, m.Name)
		case d.MachineID != m.ID:
			return failure.Internal(op, "device %q is not attached to machine %q", d.Name, m.Name)
		}
	}
	return nil
}

func attach(inv *inventory.Inventory, m *inventory.Machine, devs []*inventory.DeviceItem) error {
	for _, d := range devs {
		if err := inv.NotifyDeviceAssignedToMachine(d.ID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func detach(inv *inventory.Inventory, devs []*inventory.DeviceItem) error {
	for _, d := range devs {
		if err := inv.NotifyDeviceRemovedFromMachine(d.ID); err != nil {
			return err
		}
	}
	return nil
}

func simulateAssignToMachine(inv *inventory.Inventory, a AssignToMachine) error {
	const op = "validate assign to machine"
	m, err := lookupMachine(inv, op, a.MachineName)
	if err != nil {
		return err
	}
	devs, err := lookupDevices(inv, op, a.DeviceNames)
	if err != nil {
		return err
	}
	if err := checkAttachable(op, m, devs); err != nil {
		return err
	}
	return attach(inv, m, devs)
}

func simulateRemoveFromMachine(inv *inventory.Inventory, a RemoveFromMachine) error {
	const op = "validate remove from machine"
	m, err := lookupMachine(inv, op, a.MachineName)
	if err != nil {
		return err
	}
	devs, err := lookupDevices(inv, op, a.DeviceNames)
	if err != nil {
		return err
	}
	if err := checkDetachable(op, m, devs); err != nil {
		return err
	}
	return detach(inv, devs)
}

func simulateReconfigureMachine(inv *inventory.Inventory, a ReconfigureMachine) error {
	const op = "validate reconfigure machine"
	m, err := lookupMachine(inv, op, a.MachineName)
	if err != nil {
		return err
	}
	removed, err := lookupDevices(inv, op, a.RemoveDeviceNames)
	if err != nil {
		return err
	}
	added, err := lookupDevices(inv, op, a.AddDeviceNames)
	if err != nil {
		return err
	}
	if err := checkDetachable(op, m, removed); err != nil {
		return err
	}
	if err := checkAttachable(op, m, added); err != nil {
		return err
	}
	if err := detach(inv, removed); err != nil {
		return err
	}
	return attach(inv, m, added)
}

func simulateAssignToGroup(inv *inventory.Inventory, a AssignToGroup) error {
	const op = "validate assign to group"
	g, err := lookupGroup(inv, op, a.GroupName)
	if err != nil {
		return err
	}
	devs, err := lookupDevices(inv, op, a.DeviceNames)
	if err != nil {
		return err
	}
	for _, d := range devs {
		if d.GroupID != "" {
			return failure.Internal(op, "device %q already belongs to a group", d.Name)
		}
	}
	for _, d := range devs {
		if err := inv.NotifyDeviceAssignedToGroup(d.ID, g.ID); err != nil {
			return err
		}
	}
	return nil
}

func simulateCreateGroup(inv *inventory.Inventory, a CreateGroup) error {
	const op = "validate create group"
	if a.GroupName == "" {
		return failure.Internal(op, "group name is empty")
	}
	if _, ok := inv.GroupByName(a.GroupName); ok {
		return failure.Internal(op, "group %q already exists", a.GroupName)
	}
	return inv.NotifyGroupCreated(inventory.Group{ID: plannedID(a.GroupName), Name: a.GroupName})
}

func simulateCreateMachine(inv *inventory.Inventory, a CreateMachine) error {
	const op = "validate create machine"
	g, err := lookupGroup(inv, op, a.GroupName)
	if err != nil {
		return err
	}
	if a.MachineName == "" {
		return failure.Internal(op, "machine name is empty")
	}
	if _, ok := inv.MachineByName(a.MachineName); ok {
		return failure.Internal(op, "machine %q already exists", a.MachineName)
	}
	compute, ok := inv.DeviceByName(a.ComputeDeviceName)
	switch {
	case !ok:
		return failure.Internal(op, "device %q not found", a.ComputeDeviceName)
	case compute.Type != resource.CPU:
		return failure.Internal(op, "device %q is not a compute device", compute.Name)
	case compute.MachineID != "" || compute.GroupID != g.ID:
		return failure.Internal(op, "compute device %q is not unassigned in group %q", compute.Name, g.Name)
	}
	id := plannedID(a.MachineName)
	if err := inv.NotifyMachineCreated(inventory.Machine{ID: id, Name: a.MachineName, GroupID: g.ID}); err != nil {
		return err
	}
	return inv.NotifyDeviceAssignedToMachine(compute.ID, id)
}

func simulateDeleteMachine(inv *inventory.Inventory, a DeleteMachine) error {
	m, err := lookupMachine(inv, "validate delete machine", a.MachineName)
	if err != nil {
		return err
	}
	return inv.NotifyMachineRemoved(m.ID)
}

func (ec *ExecutionContext) notify(ctx context.Context, apply func(*inventory.Inventory) error) error {
	inv, err := ec.Inventory(ctx)
	if err != nil {
		return err
	}
	return apply(inv)
}

func (ec *ExecutionContext) addDevices(ctx context.Context, m *inventory.Machine, devs []*inventory.DeviceItem) error {
	for _, d := range devs {
		if err := ec.Fabric.AddDeviceToMachine(ctx, m.ID, d.ID); err != nil {
			return failure.Comm(fmt.Sprintf("add device %s to machine %s", d.Name, m.Name), err)
		}
	}
	return nil
}

func (ec *ExecutionContext) removeDevices(ctx context.Context, m *inventory.Machine, devs []*inventory.DeviceItem) error {
	for _, d := range devs {
		if err := ec.Fabric.RemoveDeviceFromMachine(ctx, m.ID, d.ID); err != nil {
			return failure.Comm(fmt.Sprintf("remove device %s from machine %s", d.Name, m.Name), err)
		}
	}
	return nil
}

func executeAssignToMachine(ctx context.Context, ec *ExecutionContext, a AssignToMachine) error {
	m, err := ec.machine(ctx, a.MachineName)
	if err != nil {
		return err
	}
	devs, err := ec.devices(ctx, a.DeviceNames)
	if err != nil {
		return err
	}
	outcome, err := ec.runEdit(ctx, ec.machineEdit(m), func(ctx context.Context) error {
		return ec.addDevices(ctx, m, devs)
	})
	if outcome != editCommitted {
		return err
	}
	return ec.notify(ctx, func(inv *inventory.Inventory) error {
		return attach(inv, m, devs)
	})
}

func executeRemoveFromMachine(ctx context.Context, ec *ExecutionContext, a RemoveFromMachine) error {
	m, err := ec.machine(ctx, a.MachineName)
	if err != nil {
		return err
	}
	devs, err := ec.devices(ctx, a.DeviceNames)
	if err != nil {
		return err
	}
	return ec.drain(ctx, a.NodeName, func(ctx context.Context) (editOutcome, error) {
		outcome, err := ec.runEdit(ctx, ec.machineEdit(m), func(ctx context.Context) error {
			return ec.removeDevices(ctx, m, devs)
		})
		if outcome == editCommitted {
			err = ec.notify(ctx, func(inv *inventory.Inventory) error {
				return detach(inv, devs)
			})
		}
		return outcome, err
	})
}

func executeReconfigureMachine(ctx context.Context, ec *ExecutionContext, a ReconfigureMachine) error {
	m, err := ec.machine(ctx, a.MachineName)
	if err != nil {
		return err
	}
	removed, err := ec.devices(ctx, a.RemoveDeviceNames)
	if err != nil {
		return err
	}
	added, err := ec.devices(ctx, a.AddDeviceNames)
	if err != nil {
		return err
	}
	return ec.drain(ctx, a.NodeName, func(ctx context.Context) (editOutcome, error) {
		outcome, err := ec.runEdit(ctx, ec.machineEdit(m), func(ctx context.Context) error {
			if err := ec.removeDevices(ctx, m, removed); err != nil {
				return err
			}
			return ec.addDevices(ctx, m, added)
		})
		if outcome == editCommitted {
			err = ec.notify(ctx, func(inv *inventory.Inventory) error {
				if err := detach(inv, removed); err != nil {
					return err
				}
				return attach(inv, m, added)
			})
		}
		return outcome, err
	})
}

func executeAssignToGroup(ctx context.Context, ec *ExecutionContext, a AssignToGroup) error {
	g, err := ec.group(ctx, a.GroupName)
	if err != nil {
		return err
	}
	devs, err := ec.devices(ctx, a.DeviceNames)
	if err != nil {
		return err
	}
	outcome, err := ec.runEdit(ctx, ec.groupEdit(g), func(ctx context.Context) error {
		for _, d := range devs {
			if err := ec.Fabric.AddDeviceToGroup(ctx, g.ID, d.ID); err != nil {
				return failure.Comm(fmt.Sprintf("add device %s to group %s", d.Name, g.Name), err)
			}
		}
		return nil
	})
	if outcome != editCommitted {
		return err
	}
	return ec.notify(ctx, func(inv *inventory.Inventory) error {
		for _, d := range devs {
			if err := inv.NotifyDeviceAssignedToGroup(d.ID, g.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func executeCreateGroup(ctx context.Context, ec *ExecutionContext, a CreateGroup) error {
	var id string
	outcome, err := ec.runEdit(ctx, ec.groupEdit(nil), func(ctx context.Context) error {
		var err error
		id, err = ec.Fabric.CreateGroup(ctx, a.GroupName)
		return failure.Comm("create group "+a.GroupName, err)
	})
	if outcome != editCommitted {
		return err
	}
	return ec.notify(ctx, func(inv *inventory.Inventory) error {
		return inv.NotifyGroupCreated(inventory.Group{ID: id, Name: a.GroupName})
	})
}

func executeCreateMachine(ctx context.Context, ec *ExecutionContext, a CreateMachine) error {
	g, err := ec.group(ctx, a.GroupName)
	if err != nil {
		return err
	}
	devs, err := ec.devices(ctx, []string{a.ComputeDeviceName})
	if err != nil {
		return err
	}
	compute := devs[0]
	var id string
	outcome, err := ec.runEdit(ctx, ec.groupEdit(g), func(ctx context.Context) error {
		var err error
		id, err = ec.Fabric.CreateMachine(ctx, g.ID, a.MachineName, compute.ID)
		return failure.Comm("create machine "+a.MachineName, err)
	})
	if outcome != editCommitted {
		return err
	}
	return ec.notify(ctx, func(inv *inventory.Inventory) error {
		if err := inv.NotifyMachineCreated(inventory.Machine{ID: id, Name: a.MachineName, GroupID: g.ID}); err != nil {
			return err
		}
		return inv.NotifyDeviceAssignedToMachine(compute.ID, id)
	})
}

func executeDeleteMachine(ctx context.Context, ec *ExecutionContext, a DeleteMachine) error {
	m, err := ec.machine(ctx, a.MachineName)
	if err != nil {
		return err
	}
	inv, err := ec.Inventory(ctx)
	if err != nil {
		return err
	}
	g, ok := inv.Group(m.GroupID)
	if !ok {
		return failure.Inconsistent("resolve group", "machine %q references unknown group %q", m.Name, m.GroupID)
	}
	return ec.drain(ctx, a.NodeName, func(ctx context.Context) (editOutcome, error) {
		outcome, err := ec.runEdit(ctx, ec.groupEdit(g), func(ctx context.Context) error {
			return failure.Comm("delete machine "+m.Name, ec.Fabric.DeleteMachine(ctx, m.ID))
		})
		if outcome == editCommitted {
			err = ec.notify(ctx, func(inv *inventory.Inventory) error {
				return inv.NotifyMachineRemoved(m.ID)
			})
		}
		return outcome, err
	})
}
