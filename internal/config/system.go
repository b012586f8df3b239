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
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// System represents the reconciler configuration loaded from the config file
// and the environment.
type System struct {
	Fabric   FabricConfig   `json:"fabric" yaml:"fabric"`
	Cluster  ClusterConfig  `json:"cluster" yaml:"cluster"`
	Planning PlanningConfig `json:"planning" yaml:"planning"`
}

// FabricConfig points at the fabric controller API.
type FabricConfig struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint" env:"FABRIC_ENDPOINT"`
	TenantID string        `json:"tenantID" yaml:"tenantID" env:"FABRIC_TENANT_ID"`
	Token    string        `json:"token" yaml:"token" env:"FABRIC_TOKEN"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" env:"FABRIC_TIMEOUT"`
}

// ClusterConfig describes where cluster-side records live and how nodes are drained.
type ClusterConfig struct {
	Namespace           string        `json:"namespace" yaml:"namespace" env:"CLUSTER_NAMESPACE"`
	LinkageRecord       string        `json:"linkageRecord" yaml:"linkageRecord" env:"CLUSTER_LINKAGE_RECORD"`
	EvictionGracePeriod time.Duration `json:"evictionGracePeriod" yaml:"evictionGracePeriod"`
}

type PlanningConfig struct {
	// Group limits profile allocation to one fabric group, by name.
	Group  string `json:"group" yaml:"group" env:"FABRIC_GROUP"`
	DryRun bool   `json:"dryRun" yaml:"dryRun" env:"PLANNING_DRY_RUN"`
}

const (
	DefaultNamespace     = "d8-fabric-control-plane"
	DefaultLinkageRecord = "fabric-machine-linkage"

	defaultFabricTimeout       = 30 * time.Second
	defaultEvictionGracePeriod = 30 * time.Second
)

// DefaultSystem returns a System configuration populated with safe defaults.
func DefaultSystem() System {
	return System{
		Fabric: FabricConfig{
			Timeout: defaultFabricTimeout,
		},
		Cluster: ClusterConfig{
			Namespace:           DefaultNamespace,
			LinkageRecord:       DefaultLinkageRecord,
			EvictionGracePeriod: defaultEvictionGracePeriod,
		},
	}
}

// LoadFile reads the YAML configuration file and merges it with defaults.
func LoadFile(path string) (System, error) {
	cfg := DefaultSystem()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg)
	return cfg, nil
}

var readEnv = cleanenv.ReadEnv

// ApplyEnv overrides cfg with the variables set in the environment.
func ApplyEnv(cfg *System) error {
	if err := readEnv(cfg); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	normalize(cfg)
	return nil
}

// Load reads path when it is set, applies the environment and validates the result.
func Load(path string) (System, error) {
	cfg := DefaultSystem()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports settings the reconciler cannot run with.
func (s System) Validate() error {
	if s.Fabric.Endpoint == "" {
		return fmt.Errorf("fabric endpoint is not configured")
	}
	u, err := url.Parse(s.Fabric.Endpoint)
	if err != nil {
		return fmt.Errorf("parse fabric endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("fabric endpoint %q must be an http or https URL", s.Fabric.Endpoint)
	}
	return nil
}

func normalize(cfg *System) {
	cfg.Fabric.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Fabric.Endpoint), "/")
	cfg.Fabric.TenantID = strings.TrimSpace(cfg.Fabric.TenantID)
	cfg.Fabric.Token = strings.TrimSpace(cfg.Fabric.Token)
	if cfg.Fabric.Timeout <= 0 {
		cfg.Fabric.Timeout = defaultFabricTimeout
	}

	cfg.Cluster.Namespace = strings.TrimSpace(cfg.Cluster.Namespace)
	if cfg.Cluster.Namespace == "" {
		cfg.Cluster.Namespace = DefaultNamespace
	}
	cfg.Cluster.LinkageRecord = strings.TrimSpace(cfg.Cluster.LinkageRecord)
	if cfg.Cluster.LinkageRecord == "" {
		cfg.Cluster.LinkageRecord = DefaultLinkageRecord
	}
	if cfg.Cluster.EvictionGracePeriod < 0 {
		cfg.Cluster.EvictionGracePeriod = defaultEvictionGracePeriod
	}

	cfg.Planning.Group = strings.TrimSpace(cfg.Planning.Group)
}
