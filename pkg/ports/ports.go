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

// Package ports declares the collaborators the planner talks to. Transports
// live in internal adapters.
package ports

import (
	"context"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

// DeviceStatus is the identity and health of one fabric device.
type DeviceStatus struct {
	ID    string
	Name  string
	State string
}

// DeviceInfo describes the hardware of one fabric device.
type DeviceInfo struct {
	ID     string
	Type   resource.GeneralType
	Vendor string
	Model  string
}

// GroupRecord is a fabric resource group.
type GroupRecord struct {
	ID   string
	Name string
}

// MachineRecord is a fabric machine. NodeName may be empty when the fabric
// does not know which cluster node runs on the machine.
type MachineRecord struct {
	ID       string
	Name     string
	GroupID  string
	NodeName string
}

// Relation attaches a device to a group and optionally to a machine.
type Relation struct {
	DeviceID  string
	GroupID   string
	MachineID string
}

// FabricReader enumerates the fabric topology.
type FabricReader interface {
	DeviceStatuses(ctx context.Context) ([]DeviceStatus, error)
	DeviceInfo(ctx context.Context, t resource.GeneralType) ([]DeviceInfo, error)
	Groups(ctx context.Context) ([]GroupRecord, error)
	Machines(ctx context.Context) ([]MachineRecord, error)
	Relations(ctx context.Context) ([]Relation, error)
}

// Fabric is the disaggregated-fabric controller. The controller accepts one
// outstanding edit transaction; every mutation happens between Begin and
// Commit or Cancel. A group edit on the empty group id edits the pool of
// groups itself and is used to create groups.
type Fabric interface {
	FabricReader

	BeginGroupEdit(ctx context.Context, groupID string) error
	CommitGroupEdit(ctx context.Context, groupID string) error
	CancelGroupEdit(ctx context.Context, groupID string) error

	BeginMachineEdit(ctx context.Context, machineID string) error
	CommitMachineEdit(ctx context.Context, machineID string) error
	CancelMachineEdit(ctx context.Context, machineID string) error

	CreateGroup(ctx context.Context, name string) (string, error)
	DeleteGroup(ctx context.Context, groupID string) error
	CreateMachine(ctx context.Context, groupID, name, computeDeviceID string) (string, error)
	DeleteMachine(ctx context.Context, machineID string) error

	AddDeviceToGroup(ctx context.Context, groupID, deviceID string) error
	RemoveDeviceFromGroup(ctx context.Context, groupID, deviceID string) error
	AddDeviceToMachine(ctx context.Context, machineID, deviceID string) error
	RemoveDeviceFromMachine(ctx context.Context, machineID, deviceID string) error
}

// Cluster is the workload orchestrator.
type Cluster interface {
	ReadConfigRecord(ctx context.Context, name string) (map[string]string, error)
	WriteConfigRecord(ctx context.Context, name string, data map[string]string) error

	Cordon(ctx context.Context, node string) error
	Uncordon(ctx context.Context, node string) error
	Evict(ctx context.Context, node string) error
}
