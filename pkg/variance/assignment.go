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

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
)

// Assignment maps machine names to the names of the devices each machine
// should end up holding. Machines not present are left untouched.
type Assignment map[string]sets.Set[string]

// Entry is the desired device list of one machine.
type Entry struct {
	Machine string
	Devices []string
}

// NewAssignment validates entries and builds an Assignment.
func NewAssignment(entries ...Entry) (Assignment, error) {
	const op = "build desired assignment"
	out := make(Assignment, len(entries))
	owner := map[string]string{}
	for _, e := range entries {
		if e.Machine == "" {
			return nil, failure.Invalid(op, "machine name is empty")
		}
		if _, ok := out[e.Machine]; ok {
			return nil, failure.Invalid(op, "machine %q appears more than once", e.Machine)
		}
		devices := sets.New[string]()
		for _, name := range e.Devices {
			if name == "" {
				return nil, failure.Invalid(op, "machine %q lists an empty device name", e.Machine)
			}
			if devices.Has(name) {
				return nil, failure.Invalid(op, "machine %q lists device %q twice", e.Machine, name)
			}
			if prev, ok := owner[name]; ok {
				return nil, failure.Invalid(op, "device %q is desired by machines %q and %q", name, prev, e.Machine)
			}
			owner[name] = e.Machine
			devices.Insert(name)
		}
		out[e.Machine] = devices
	}
	return out, nil
}

// Machines returns the machine names in order.
func (a Assignment) Machines() []string {
	out := make([]string, 0, len(a))
	for name := range a {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
