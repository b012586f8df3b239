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

import "github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"

// DeviceFacts are the immutable properties of a device. Copies of an
// Inventory share them.
type DeviceFacts struct {
	ID     string
	Name   string
	Type   resource.GeneralType
	Vendor string
	Model  string
	State  string
}

// DeviceItem is one device with its current group and machine attachment.
// An empty GroupID or MachineID means the relation is absent.
type DeviceItem struct {
	*DeviceFacts
	GroupID   string
	MachineID string
}

func (d *DeviceItem) GeneralType() resource.GeneralType { return d.Type }
func (d *DeviceItem) VendorName() string                { return d.Vendor }
func (d *DeviceItem) ModelName() string                 { return d.Model }

// Unassigned reports whether the device sits in a group without a machine.
func (d *DeviceItem) Unassigned() bool {
	return d.GroupID != "" && d.MachineID == ""
}

func (d *DeviceItem) clone() *DeviceItem {
	cp := *d
	return &cp
}

// Group is a fabric resource pool.
type Group struct {
	ID   string
	Name string
}

// Machine is a fabric composition of a compute device plus attached devices.
type Machine struct {
	ID       string
	Name     string
	GroupID  string
	NodeName string
}
