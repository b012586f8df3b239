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

// GeneralType is the coarse category of a fabric device.
type GeneralType string

const (
	CPU    GeneralType = "CPU"
	FPGA   GeneralType = "FPGA"
	GPU    GeneralType = "GPU"
	Link   GeneralType = "LINK"
	Memory GeneralType = "MEMORY"
	SSD    GeneralType = "SSD"
)

// AllTypes lists every general type in a stable order.
var AllTypes = []GeneralType{CPU, FPGA, GPU, Link, Memory, SSD}

// ParseGeneralType maps a fabric type string onto a GeneralType.
// Ethernet, fibre-channel and infiniband adapters all collapse into Link.
func ParseGeneralType(raw string) (GeneralType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cpu", "compute":
		return CPU, nil
	case "fpga":
		return FPGA, nil
	case "gpu":
		return GPU, nil
	case "memory", "mem", "cxlmem":
		return Memory, nil
	case "ssd", "storage", "nvme":
		return SSD, nil
	case "link", "nic", "ethernet", "fc", "fibre-channel", "fibrechannel", "infiniband", "ib":
		return Link, nil
	default:
		return "", fmt.Errorf("unknown device type %q", raw)
	}
}

// Valid reports whether t is one of the known general types.
func (t GeneralType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Allocatable reports whether devices of this type carry spare capacity
// meaning. Compute devices are bound 1:1 to their machine.
func (t GeneralType) Allocatable() bool {
	return t != CPU
}
