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

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/variance"
)

// Desired is the desired-state file. Every machine lists either the exact
// devices it should hold or a profile of device counts.
type Desired struct {
	Machines []DesiredMachine `json:"machines" yaml:"machines"`
}

type DesiredMachine struct {
	Name    string         `json:"name" yaml:"name"`
	Devices []string       `json:"devices,omitempty" yaml:"devices,omitempty"`
	Profile []ProfileEntry `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// ProfileEntry requests Count devices of Model, written as "type",
// "type/vendor" or "type/vendor/model".
type ProfileEntry struct {
	Model string `json:"model" yaml:"model"`
	Count int    `json:"count" yaml:"count"`
}

// LoadDesired reads and checks a desired-state file.
func LoadDesired(path string) (*Desired, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read desired state: %w", err)
	}
	return ParseDesired(data)
}

func ParseDesired(data []byte) (*Desired, error) {
	const op = "parse desired state"
	d := &Desired{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, failure.New(failure.InvalidConfiguration, op, err)
	}
	for i := range d.Machines {
		m := &d.Machines[i]
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, failure.Invalid(op, "machine #%d has no name", i+1)
		}
		if len(m.Devices) > 0 && len(m.Profile) > 0 {
			return nil, failure.Invalid(op, "machine %q sets both devices and profile", m.Name)
		}
		for j := range m.Devices {
			m.Devices[j] = strings.TrimSpace(m.Devices[j])
		}
	}
	return d, nil
}

// Entries returns the machines that list explicit devices. Machines with an
// empty device list and no profile are included and end up with no devices.
func (d *Desired) Entries() []variance.Entry {
	var out []variance.Entry
	for _, m := range d.Machines {
		if len(m.Profile) > 0 {
			continue
		}
		out = append(out, variance.Entry{Machine: m.Name, Devices: append([]string(nil), m.Devices...)})
	}
	return out
}

// Profiles returns the profile demand of machines that use profiles.
func (d *Desired) Profiles() (map[string]resource.Profile, error) {
	const op = "parse desired profile"
	out := map[string]resource.Profile{}
	for _, m := range d.Machines {
		if len(m.Profile) == 0 {
			continue
		}
		p := resource.NewProfile()
		for _, e := range m.Profile {
			model, err := resource.ParseModel(e.Model)
			if err != nil {
				return nil, failure.New(failure.InvalidConfiguration, op, fmt.Errorf("machine %q: %w", m.Name, err))
			}
			if e.Count < 0 {
				return nil, failure.Invalid(op, "machine %q requests %d devices of %s", m.Name, e.Count, model)
			}
			p.Inject(model, e.Count)
		}
		out[m.Name] = p
	}
	return out, nil
}
