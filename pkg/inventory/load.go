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
	"context"
	"fmt"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

// Load builds a fresh inventory from a full fabric snapshot.
func Load(ctx context.Context, fabric ports.FabricReader) (*Inventory, error) {
	statuses, err := fabric.DeviceStatuses(ctx)
	if err != nil {
		return nil, failure.Comm("list device statuses", err)
	}
	infos := make(map[string]ports.DeviceInfo, len(statuses))
	for _, t := range resource.AllTypes {
		list, err := fabric.DeviceInfo(ctx, t)
		if err != nil {
			return nil, failure.Comm(fmt.Sprintf("list %s device info", t), err)
		}
		for _, info := range list {
			if info.Type == "" {
				info.Type = t
			}
			infos[info.ID] = info
		}
	}
	groups, err := fabric.Groups(ctx)
	if err != nil {
		return nil, failure.Comm("list groups", err)
	}
	machines, err := fabric.Machines(ctx)
	if err != nil {
		return nil, failure.Comm("list machines", err)
	}
	relations, err := fabric.Relations(ctx)
	if err != nil {
		return nil, failure.Comm("list device relations", err)
	}
	return Build(statuses, infos, groups, machines, relations)
}

// Build assembles an inventory from already fetched snapshot records.
func Build(
	statuses []ports.DeviceStatus,
	infos map[string]ports.DeviceInfo,
	groups []ports.GroupRecord,
	machines []ports.MachineRecord,
	relations []ports.Relation,
) (*Inventory, error) {
	const op = "build inventory"
	inv := New()

	for _, g := range groups {
		if err := inv.NotifyGroupCreated(Group{ID: g.ID, Name: g.Name}); err != nil {
			return nil, err
		}
	}
	for _, m := range machines {
		if err := inv.NotifyMachineCreated(Machine{ID: m.ID, Name: m.Name, GroupID: m.GroupID, NodeName: m.NodeName}); err != nil {
			return nil, err
		}
	}
	for _, st := range statuses {
		info, ok := infos[st.ID]
		if !ok {
			return nil, failure.Inconsistent(op, "device %q has status but no hardware info", st.ID)
		}
		if !info.Type.Valid() {
			return nil, failure.Inconsistent(op, "device %q has unknown type %q", st.ID, info.Type)
		}
		facts := DeviceFacts{
			ID:     st.ID,
			Name:   st.Name,
			Type:   info.Type,
			Vendor: info.Vendor,
			Model:  info.Model,
			State:  st.State,
		}
		if facts.Name == "" {
			facts.Name = st.ID
		}
		if err := inv.NotifyDeviceCreated(facts, "", ""); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(relations))
	for _, rel := range relations {
		if _, dup := seen[rel.DeviceID]; dup {
			return nil, failure.Inconsistent(op, "device %q has more than one relation", rel.DeviceID)
		}
		seen[rel.DeviceID] = struct{}{}

		if _, ok := inv.devices[rel.DeviceID]; !ok {
			return nil, failure.Inconsistent(op, "relation references unknown device %q", rel.DeviceID)
		}
		if rel.MachineID != "" {
			m, ok := inv.machines[rel.MachineID]
			if !ok {
				return nil, failure.Inconsistent(op, "device %q references unknown machine %q", rel.DeviceID, rel.MachineID)
			}
			if rel.GroupID != "" && rel.GroupID != m.GroupID {
				return nil, failure.Inconsistent(op, "device %q is in group %q but machine %q is in group %q",
					rel.DeviceID, rel.GroupID, m.Name, m.GroupID)
			}
			if err := inv.NotifyDeviceAssignedToMachine(rel.DeviceID, rel.MachineID); err != nil {
				return nil, err
			}
			continue
		}
		if rel.GroupID != "" {
			if err := inv.NotifyDeviceAssignedToGroup(rel.DeviceID, rel.GroupID); err != nil {
				return nil, err
			}
		}
	}

	if err := inv.Verify(); err != nil {
		return nil, err
	}
	return inv, nil
}
