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

package variance

import (
	"sort"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/plan"
)

// Build plans the moves that give every machine in desired exactly its
// desired devices. inv is not modified. Desired devices that belong to no
// group are first assigned to the group of their machine.
func Build(inv *inventory.Inventory, desired Assignment, opts ...Option) (*plan.Plan, error) {
	work := inv.Copy()
	set, err := CreateVarianceSet(work, desired, opts...)
	if err != nil {
		return nil, err
	}

	p := plan.New()
	if err := assignLooseDevices(work, set, p); err != nil {
		return nil, err
	}

	unassigned := work.Unassigned("")
	for {
		a, err := set.NextAction(work, unassigned)
		if err != nil {
			return nil, err
		}
		if a == nil {
			break
		}
		p.AddAction(a)
	}

	if err := p.Validate(inv); err != nil {
		return nil, failure.Internal("build plan", "synthesized plan does not apply: %v", err)
	}
	return p, nil
}

func assignLooseDevices(work *inventory.Inventory, set *VarianceSet, p *plan.Plan) error {
	loose := map[string][]string{}
	for _, v := range set.variances {
		m, _ := work.Machine(v.MachineID)
		for _, d := range sortedItems(work, v) {
			if d.GroupID == "" {
				loose[m.GroupID] = append(loose[m.GroupID], d.ID)
			}
		}
	}

	groupIDs := make([]string, 0, len(loose))
	for id := range loose {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)

	for _, groupID := range groupIDs {
		g, _ := work.Group(groupID)
		names := make([]string, 0, len(loose[groupID]))
		for _, id := range loose[groupID] {
			if err := work.NotifyDeviceAssignedToGroup(id, groupID); err != nil {
				return err
			}
			d, _ := work.Device(id)
			names = append(names, d.Name)
		}
		p.AddAction(plan.AssignToGroup{GroupName: g.Name, DeviceNames: names})
	}
	return nil
}

func sortedItems(inv *inventory.Inventory, v *Variance) []*inventory.DeviceItem {
	out := make([]*inventory.DeviceItem, 0, v.Gaining.Len())
	for _, name := range inv.DeviceNames(v.Gaining) {
		d, _ := inv.DeviceByName(name)
		out = append(out, d)
	}
	return out
}
