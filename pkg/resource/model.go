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
	"strings"
)

// Tier is the specificity of a Model. Lower values are more specific.
type Tier int

const (
	// TierSpecific matches one (type, vendor, model) triple.
	TierSpecific Tier = iota
	// TierVendor matches any model of a vendor.
	TierVendor
	// TierGeneric matches any device of a type.
	TierGeneric
)

func (t Tier) String() string {
	switch t {
	case TierSpecific:
		return "Specific"
	case TierVendor:
		return "Vendor"
	case TierGeneric:
		return "Generic"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Model identifies a class of devices at one specificity tier.
// Models are comparable; fields beyond the tier are always zeroed so two
// models are equal only within the same tier.
type Model struct {
	Tier   Tier
	Type   GeneralType
	Vendor string
	Name   string
}

// Specific returns an exact (type, vendor, model) classification.
func Specific(t GeneralType, vendor, model string) Model {
	return Model{Tier: TierSpecific, Type: t, Vendor: vendor, Name: model}
}

// VendorModel returns a classification matching every model of vendor.
func VendorModel(t GeneralType, vendor string) Model {
	return Model{Tier: TierVendor, Type: t, Vendor: vendor}
}

// Generic returns a classification matching every device of type t.
func Generic(t GeneralType) Model {
	return Model{Tier: TierGeneric, Type: t}
}

// ParseModel reads "type", "type/vendor" or "type/vendor/model".
func ParseModel(raw string) (Model, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) > 3 {
		return Model{}, fmt.Errorf("model %q has too many segments", raw)
	}
	t, err := ParseGeneralType(parts[0])
	if err != nil {
		return Model{}, err
	}
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == "" {
			return Model{}, fmt.Errorf("model %q has an empty segment", raw)
		}
	}
	switch len(parts) {
	case 1:
		return Generic(t), nil
	case 2:
		return VendorModel(t, strings.TrimSpace(parts[1])), nil
	default:
		return Specific(t, strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])), nil
	}
}

func (m Model) String() string {
	switch m.Tier {
	case TierSpecific:
		return fmt.Sprintf("%s/%s/%s", m.Type, m.Vendor, m.Name)
	case TierVendor:
		return fmt.Sprintf("%s/%s", m.Type, m.Vendor)
	default:
		return string(m.Type)
	}
}

// Overlaps reports whether a and b could describe the same physical device.
func Overlaps(a, b Model) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Tier <= TierVendor && b.Tier <= TierVendor && a.Vendor != b.Vendor {
		return false
	}
	if a.Tier == TierSpecific && b.Tier == TierSpecific && a.Name != b.Name {
		return false
	}
	return true
}

// Overlaps is the method form of Overlaps.
func (m Model) Overlaps(other Model) bool {
	return Overlaps(m, other)
}

// Less orders models by tier, type, vendor and name.
func (m Model) Less(other Model) bool {
	if m.Tier != other.Tier {
		return m.Tier < other.Tier
	}
	if m.Type != other.Type {
		return m.Type < other.Type
	}
	if m.Vendor != other.Vendor {
		return m.Vendor < other.Vendor
	}
	return m.Name < other.Name
}

// Descriptor is the minimal view of a device needed for classification.
type Descriptor interface {
	GeneralType() GeneralType
	VendorName() string
	ModelName() string
}

// Classify returns the Specific model of a device.
func Classify(d Descriptor) Model {
	return Specific(d.GeneralType(), d.VendorName(), d.ModelName())
}

// ClassifyAt returns the classification of a device at the requested tier.
func ClassifyAt(d Descriptor, tier Tier) Model {
	switch tier {
	case TierVendor:
		return VendorModel(d.GeneralType(), d.VendorName())
	case TierGeneric:
		return Generic(d.GeneralType())
	default:
		return Classify(d)
	}
}
