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
	"fmt"
	"strings"
)

// Kind names an action variant. It is also the key of the executor registry.
type Kind string

const (
	KindAssignToMachine    Kind = "AssignToMachine"
	KindRemoveFromMachine  Kind = "RemoveFromMachine"
	KindReconfigureMachine Kind = "ReconfigureMachine"
	KindAssignToGroup      Kind = "AssignToGroup"
	KindCreateGroup        Kind = "CreateGroup"
	KindCreateMachine      Kind = "CreateMachine"
	KindDeleteMachine      Kind = "DeleteMachine"
	KindNoOperation        Kind = "NoOperation"
)

// Action is one step of a Plan. The set of implementations is closed; every
// variant carries the names it needs and nothing else.
type Action interface {
	Kind() Kind
	Describe() string
}

// AssignToMachine attaches unassigned devices to an existing machine.
type AssignToMachine struct {
	MachineName string
	DeviceNames []string
}

func (AssignToMachine) Kind() Kind { return KindAssignToMachine }

func (a AssignToMachine) Describe() string {
	return fmt.Sprintf("Assign %s to machine %s", joinNames(a.DeviceNames), a.MachineName)
}

// RemoveFromMachine detaches devices from a machine, returning them to the
// unassigned pool of its group. NodeName is the cluster node to drain.
type RemoveFromMachine struct {
	MachineName string
	NodeName    string
	DeviceNames []string
}

func (RemoveFromMachine) Kind() Kind { return KindRemoveFromMachine }

func (a RemoveFromMachine) Describe() string {
	return fmt.Sprintf("Remove %s from machine %s%s", joinNames(a.DeviceNames), a.MachineName, onNode(a.NodeName))
}

// ReconfigureMachine adds and removes devices of one machine in a single edit.
type ReconfigureMachine struct {
	MachineName       string
	NodeName          string
	AddDeviceNames    []string
	RemoveDeviceNames []string
}

func (ReconfigureMachine) Kind() Kind { return KindReconfigureMachine }

func (a ReconfigureMachine) Describe() string {
	return fmt.Sprintf("Reconfigure machine %s%s: add %s, remove %s",
		a.MachineName, onNode(a.NodeName), joinNames(a.AddDeviceNames), joinNames(a.RemoveDeviceNames))
}

// AssignToGroup moves devices that belong to no group into a group.
type AssignToGroup struct {
	GroupName   string
	DeviceNames []string
}

func (AssignToGroup) Kind() Kind { return KindAssignToGroup }

func (a AssignToGroup) Describe() string {
	return fmt.Sprintf("Assign %s to group %s", joinNames(a.DeviceNames), a.GroupName)
}

type CreateGroup struct {
	GroupName string
}

func (CreateGroup) Kind() Kind { return KindCreateGroup }

func (a CreateGroup) Describe() string {
	return fmt.Sprintf("Create group %s", a.GroupName)
}

// CreateMachine composes a new machine around an unassigned compute device.
type CreateMachine struct {
	GroupName         string
	MachineName       string
	ComputeDeviceName string
}

func (CreateMachine) Kind() Kind { return KindCreateMachine }

func (a CreateMachine) Describe() string {
	return fmt.Sprintf("Create machine %s in group %s with compute device %s", a.MachineName, a.GroupName, a.ComputeDeviceName)
}

// DeleteMachine decomposes a machine. Its devices stay in the group.
type DeleteMachine struct {
	MachineName string
	NodeName    string
}

func (DeleteMachine) Kind() Kind { return KindDeleteMachine }

func (a DeleteMachine) Describe() string {
	return fmt.Sprintf("Delete machine %s%s", a.MachineName, onNode(a.NodeName))
}

// NoOperation is produced for variances that turned out to want nothing.
// It never belongs to a finished plan.
type NoOperation struct{}

func (NoOperation) Kind() Kind { return KindNoOperation }

func (NoOperation) Describe() string { return "No operation" }

func joinNames(names []string) string {
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, ", ")
}

func onNode(node string) string {
	if node == "" {
		return ""
	}
	return " (node " + node + ")"
}
