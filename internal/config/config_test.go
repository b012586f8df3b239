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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/variance"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadFileMergesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "fabric:\n  endpoint: https://fabric.example.com/api/ \n  timeout: 5s\ncluster:\n  namespace: ' '\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Fabric.Endpoint != "https://fabric.example.com/api" {
		t.Fatalf("expected trimmed endpoint, got %q", cfg.Fabric.Endpoint)
	}
	if cfg.Fabric.Timeout != 5*time.Second {
		t.Fatalf("expected override to 5s, got %s", cfg.Fabric.Timeout)
	}
	if cfg.Cluster.Namespace != DefaultNamespace {
		t.Fatalf("expected default namespace, got %q", cfg.Cluster.Namespace)
	}
	if cfg.Cluster.LinkageRecord != DefaultLinkageRecord {
		t.Fatalf("expected default linkage record, got %q", cfg.Cluster.LinkageRecord)
	}
	if cfg.Cluster.EvictionGracePeriod != defaultEvictionGracePeriod {
		t.Fatalf("unexpected grace period %s", cfg.Cluster.EvictionGracePeriod)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := writeFile(t, "broken.yaml", "fabric: [")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "fabric:\n  endpoint: http://file.example.com\n  tenantID: from-file\nplanning:\n  group: pool-a\n")
	t.Setenv("FABRIC_ENDPOINT", "https://env.example.com")
	t.Setenv("FABRIC_TOKEN", " secret ")
	t.Setenv("PLANNING_DRY_RUN", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := System{
		Fabric: FabricConfig{
			Endpoint: "https://env.example.com",
			TenantID: "from-file",
			Token:    "secret",
			Timeout:  defaultFabricTimeout,
		},
		Cluster: ClusterConfig{
			Namespace:           DefaultNamespace,
			LinkageRecord:       DefaultLinkageRecord,
			EvictionGracePeriod: defaultEvictionGracePeriod,
		},
		Planning: PlanningConfig{Group: "pool-a", DryRun: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestApplyEnvPropagatesReaderErrors(t *testing.T) {
	orig := readEnv
	t.Cleanup(func() { readEnv = orig })
	readEnv = func(any) error { return errors.New("boom") }

	cfg := DefaultSystem()
	if err := ApplyEnv(&cfg); err == nil {
		t.Fatal("expected env error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultSystem()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing endpoint to be rejected")
	}
	cfg.Fabric.Endpoint = "ftp://fabric"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-http endpoint to be rejected")
	}
	cfg.Fabric.Endpoint = "https://fabric"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseDesired(t *testing.T) {
	data := []byte(`
machines:
  - name: machine-1
    devices: [gpu-1, " gpu-2 "]
  - name: machine-2
    profile:
      - model: gpu/nvidia/A100
        count: 2
      - model: ssd
        count: 1
  - name: machine-3
`)
	d, err := ParseDesired(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	wantEntries := []variance.Entry{
		{Machine: "machine-1", Devices: []string{"gpu-1", "gpu-2"}},
		{Machine: "machine-3", Devices: nil},
	}
	if diff := cmp.Diff(wantEntries, d.Entries()); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}

	profiles, err := d.Profiles()
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	want := map[string]resource.Profile{
		"machine-2": {
			resource.Specific(resource.GPU, "nvidia", "A100"): 2,
			resource.Generic(resource.SSD):                    1,
		},
	}
	if diff := cmp.Diff(want, profiles); diff != "" {
		t.Fatalf("unexpected profiles (-want +got):\n%s", diff)
	}
}

func TestParseDesiredRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"malformed yaml": "machines: [",
		"missing name":   "machines:\n  - devices: [gpu-1]\n",
		"both forms":     "machines:\n  - name: m\n    devices: [gpu-1]\n    profile:\n      - model: gpu\n        count: 1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDesired([]byte(data)); !failure.Is(err, failure.InvalidConfiguration) {
				t.Fatalf("expected invalid configuration, got %v", err)
			}
		})
	}

	d, err := ParseDesired([]byte("machines:\n  - name: m\n    profile:\n      - model: quantum\n        count: 1\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := d.Profiles(); !failure.Is(err, failure.InvalidConfiguration) {
		t.Fatalf("expected unknown model to be rejected, got %v", err)
	}
}
