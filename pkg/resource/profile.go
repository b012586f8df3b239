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

package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Profile counts devices per Model. Counts are signed; entries that reach
// zero or go negative are retained.
type Profile map[Model]int

// NewProfile returns an empty profile.
func NewProfile() Profile {
	return Profile{}
}

// Count returns the count recorded for m.
func (p Profile) Count(m Model) int {
	return p[m]
}

// Inject adds delta to the entry of m, creating it at zero when absent.
func (p Profile) Inject(m Model, delta int) {
	p[m] += delta
}

// InjectDevice adds one device under its Specific classification.
func (p Profile) InjectDevice(d Descriptor) {
	p.Inject(Classify(d), 1)
}

// Merge injects every entry of other into p.
func (p Profile) Merge(other Profile) {
	for m, n := range other {
		p.Inject(m, n)
	}
}

// Clone returns an independent copy of p.
func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	for m, n := range p {
		out[m] = n
	}
	return out
}

// Total sums all counts.
func (p Profile) Total() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}

// Models returns the keys of p ordered by tier, type, vendor and name.
func (p Profile) Models() []Model {
	out := make([]Model, 0, len(p))
	for m := range p {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Equal compares counts, treating missing entries as zero.
func (p Profile) Equal(other Profile) bool {
	for m, n := range p {
		if other[m] != n {
			return false
		}
	}
	for m, n := range other {
		if p[m] != n {
			return false
		}
	}
	return true
}

// Positive reports whether every entry is greater than zero.
func (p Profile) Positive() bool {
	for _, n := range p {
		if n <= 0 {
			return false
		}
	}
	return true
}

func (p Profile) String() string {
	parts := make([]string, 0, len(p))
	for _, m := range p.Models() {
		parts = append(parts, fmt.Sprintf("%s=%d", m, p[m]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Merge returns a new profile holding the entry-wise sum of all inputs.
func Merge(profiles ...Profile) Profile {
	out := NewProfile()
	for _, p := range profiles {
		out.Merge(p)
	}
	return out
}

// Shortfall matches demand against supply and returns the demand that cannot
// be met. Demand entries are served most specific first, each consuming
// overlapping supply in model order. An empty result means supply suffices.
func Shortfall(supply, demand Profile) Profile {
	remaining := make([]Model, 0, len(supply))
	left := make(map[Model]int, len(supply))
	for _, m := range supply.Models() {
		if n := supply[m]; n > 0 {
			remaining = append(remaining, m)
			left[m] = n
		}
	}

	missing := NewProfile()
	for _, want := range demand.Models() {
		need := demand[want]
		for _, have := range remaining {
			if need <= 0 {
				break
			}
			if left[have] == 0 || !Overlaps(want, have) {
				continue
			}
			take := min(need, left[have])
			left[have] -= take
			need -= take
		}
		if need > 0 {
			missing[want] = need
		}
	}
	return missing
}
