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

package fabric

// Wire payloads of the fabric controller REST API.

type deviceStatus struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type deviceInfo struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

type group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type machine struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	GroupID  string `json:"groupId"`
	NodeName string `json:"nodeName,omitempty"`
}

type relation struct {
	DeviceID  string `json:"deviceId"`
	GroupID   string `json:"groupId,omitempty"`
	MachineID string `json:"machineId,omitempty"`
}

type createGroupRequest struct {
	Name string `json:"name"`
}

type createMachineRequest struct {
	Name            string `json:"name"`
	ComputeDeviceID string `json:"computeDeviceId"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
