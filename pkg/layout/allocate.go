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

package layout

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

type need struct {
	machine string
	model   resource.Model
	count   int
}

// Allocate turns per-machine demand profiles into concrete device names.
// Demands are served tier by tier across all machines: Specific first, then
// Vendor, then Generic, so a broad demand never keeps or takes a device an
// exact one needs. Within a tier a machine keeps the matching devices it
// already holds, then takes from the unassigned pool, then from devices held
// by other machines in the demand. Devices named in reserved are never
// handed out. The result maps machine name to sorted device names.
func Allocate(inv *inventory.Inventory, groupID string, demand map[string]resource.Profile, reserved sets.Set[string]) (map[string][]string, error) {
	const op = "allocate devices"
	l := CreateFromInventory(inv, groupID)
	if err := l.CheckDemand(demand); err != nil {
		return nil, err
	}

	machines := make([]string, 0, len(demand))
	for name := range demand {
		machines = append(machines, name)
	}
	sort.Strings(machines)

	chosen := make(map[string]sets.Set[string], len(machines))
	held := make(map[string][]*inventory.DeviceItem, len(machines))
	var released []*inventory.DeviceItem
	var needs []*need
	for _, name := range machines {
		chosen[name] = sets.New[string]()
		held[name] = unreserved(allocatable(inv.MachineDevices(l.Machines[name].MachineID)), reserved)
		released = append(released, held[name]...)
		for _, model := range demand[name].Models() {
			if count := demand[name][model]; count > 0 {
				needs = append(needs, &need{machine: name, model: model, count: count})
			}
		}
	}
	sort.SliceStable(needs, func(i, j int) bool {
		if needs[i].model.Tier != needs[j].model.Tier {
			return needs[i].model.Tier < needs[j].model.Tier
		}
		return needs[i].machine < needs[j].machine
	})

	var unassigned []*inventory.DeviceItem
	for id := range inv.Unassigned(groupID) {
		d, _ := inv.Device(id)
		unassigned = append(unassigned, d)
	}
	pool := sortByName(unreserved(allocatable(unassigned), reserved))
	released = sortByName(released)

	taken := sets.New[string]()
	take := func(n *need, from []*inventory.DeviceItem) {
		for _, d := range from {
			if n.count == 0 {
				return
			}
			if taken.Has(d.ID) || !resource.Overlaps(n.model, resource.Classify(d)) {
				continue
			}
			taken.Insert(d.ID)
			chosen[n.machine].Insert(d.Name)
			n.count--
		}
	}

	for start := 0; start < len(needs); {
		end := start
		for end < len(needs) && needs[end].model.Tier == needs[start].model.Tier {
			end++
		}
		tier := needs[start:end]
		for _, n := range tier {
			take(n, held[n.machine])
		}
		for _, n := range tier {
			take(n, pool)
		}
		for _, n := range tier {
			take(n, released)
			if n.count > 0 {
				return nil, failure.Invalid(op, "machine %q: %d more %s devices are needed than can be allocated", n.machine, n.count, n.model)
			}
		}
		start = end
	}

	out := make(map[string][]string, len(chosen))
	for name, names := range chosen {
		out[name] = sets.List(names)
	}
	return out, nil
}

func unreserved(items []*inventory.DeviceItem, reserved sets.Set[string]) []*inventory.DeviceItem {
	out := make([]*inventory.DeviceItem, 0, len(items))
	for _, d := range items {
		if !reserved.Has(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

func allocatable(items []*inventory.DeviceItem) []*inventory.DeviceItem {
	out := make([]*inventory.DeviceItem, 0, len(items))
	for _, d := range items {
		if d.Type.Allocatable() {
			out = append(out, d)
		}
	}
	return out
}

func sortByName(items []*inventory.DeviceItem) []*inventory.DeviceItem {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
