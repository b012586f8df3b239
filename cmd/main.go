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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	crcluster "sigs.k8s.io/controller-runtime/pkg/cluster"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/cluster"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/config"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/fabric"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/manager"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/indexer"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
)

var (
	loadSystem    = config.Load
	loadDesired   = config.LoadDesired
	getRESTConfig = ctrl.GetConfig
	setupSignals  = ctrl.SetupSignalHandler
	newKubeClient = startKubeClient
	newFabric     = func(ctx context.Context, cfg config.FabricConfig) (ports.Fabric, error) {
		return fabric.New(ctx, cfg, fabric.WithLogger(manager.Log.WithName("fabric")))
	}
	runReconcile = manager.Run
	writeMetrics = func(path string) error {
		return prometheus.WriteToTextfile(path, ctrlmetrics.Registry)
	}
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Getenv))
}

func runMain(args []string, getenv func(string) string) int {
	flagSet := flag.NewFlagSet("fabric-reconciler", flag.ExitOnError)
	configPath := flagSet.String("config", getenv("CONFIG_PATH"), "Path to the system config file.")
	desiredPath := flagSet.String("desired", getenv("DESIRED_STATE_PATH"), "Path to the desired machine layout.")
	dryRun := flagSet.Bool("dry-run", false, "Only describe the plan.")
	group := flagSet.String("group", "", "Fabric group that profile based machines are allocated from.")
	metricsFile := flagSet.String("metrics-textfile", "", "Write metrics in text format to this file after the run.")
	opts := zap.Options{Development: true}
	opts.BindFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		manager.Log.Error(err, "failed to parse flags")
		return 1
	}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	path := strings.TrimSpace(*configPath)
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			manager.Log.Info("config file not found, using defaults", "path", path)
			path = ""
		}
	}
	sysCfg, err := loadSystem(path)
	if err != nil {
		manager.Log.Error(err, "failed to load config", "path", path)
		return 1
	}
	if *dryRun {
		sysCfg.Planning.DryRun = true
	}
	if g := strings.TrimSpace(*group); g != "" {
		sysCfg.Planning.Group = g
	}

	if strings.TrimSpace(*desiredPath) == "" {
		manager.Log.Error(errors.New("desired state path is empty"), "nothing to reconcile")
		return 1
	}
	desired, err := loadDesired(*desiredPath)
	if err != nil {
		manager.Log.Error(err, "failed to load desired state", "path", *desiredPath)
		return 1
	}

	ctx := setupSignals()
	fab, err := newFabric(ctx, sysCfg.Fabric)
	if err != nil {
		manager.Log.Error(err, "failed to create fabric client")
		return 1
	}
	restCfg, err := getRESTConfig()
	if err != nil {
		manager.Log.Error(err, "failed to load kubeconfig")
		return 1
	}
	kube, err := newKubeClient(ctx, restCfg)
	if err != nil {
		manager.Log.Error(err, "failed to create kubernetes client")
		return 1
	}

	deps := manager.Deps{
		Fabric:  fab,
		Cluster: cluster.New(kube, sysCfg.Cluster, cluster.WithLogger(manager.Log.WithName("cluster"))),
		Log:     manager.Log,
	}
	_, runErr := runReconcile(ctx, deps, sysCfg, desired)

	if *metricsFile != "" {
		if err := writeMetrics(*metricsFile); err != nil {
			manager.Log.Error(err, "failed to write metrics", "path", *metricsFile)
		}
	}
	if runErr != nil {
		manager.Log.Error(runErr, "reconciliation failed", "kind", failure.KindOf(runErr).String())
		return 1
	}
	return 0
}

// startKubeClient starts a cache with pods indexed by node. Nodes and
// ConfigMaps bypass the cache so patches and record writes see fresh data.
func startKubeClient(ctx context.Context, restCfg *rest.Config) (client.Client, error) {
	c, err := crcluster.New(restCfg, func(o *crcluster.Options) {
		o.Client.Cache = &client.CacheOptions{
			DisableFor: []client.Object{&corev1.Node{}, &corev1.ConfigMap{}},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create cluster: %w", err)
	}
	if err := indexer.IndexPodByNodeName(ctx, c.GetFieldIndexer()); err != nil {
		return nil, fmt.Errorf("index pods by node: %w", err)
	}
	go func() {
		if err := c.Start(ctx); err != nil {
			manager.Log.Error(err, "cluster cache stopped")
		}
	}()
	if !c.GetCache().WaitForCacheSync(ctx) {
		return nil, errors.New("cluster cache did not sync")
	}
	return c.GetClient(), nil
}
