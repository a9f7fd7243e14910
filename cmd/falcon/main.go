// Copyright 2025 Google LLC
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

// Command falcon is the mount-adapter-facing entry point: it wires the
// storage engine core to a peer RPC listener (`falcon serve`) and polls
// a running node's stat_cluster RPC for a human-readable dashboard
// (`falcon stats`).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/falconfs/falcon/internal/blobstore"
	"github.com/falconfs/falcon/internal/blockcache"
	falconcfg "github.com/falconfs/falcon/internal/config"
	"github.com/falconfs/falcon/internal/engine"
	"github.com/falconfs/falcon/internal/falconconfig"
	"github.com/falconfs/falcon/internal/filelock"
	"github.com/falconfs/falcon/internal/logger"
	"github.com/falconfs/falcon/internal/membership"
	"github.com/falconfs/falcon/internal/membuf"
	"github.com/falconfs/falcon/internal/metaclient"
	"github.com/falconfs/falcon/internal/metaclient/router"
	"github.com/falconfs/falcon/internal/roster"
	"github.com/falconfs/falcon/internal/rpcpeer"
	"github.com/falconfs/falcon/internal/stats"
	"github.com/falconfs/falcon/internal/workerpool"
)

func main() {
	root := &cobra.Command{
		Use:   "falcon",
		Short: "FalconFS storage engine node",
	}
	root.AddCommand(newServeCmd(), newStatsCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var configFile string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a storage engine node, serving peer RPCs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile, listenAddr)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "path to the legacy CONFIG_FILE JSON document")
	cmd.Flags().StringVar(&listenAddr, "listen", ":9090", "peer RPC listen address")
	return cmd
}

// loadConfig loads the legacy CONFIG_FILE JSON document: the --config
// file if given, otherwise the file named by CONFIG_FILE, or by
// FALCON_CONFIG_FILE when that is set. Individual keys are not
// overridden from the environment.
func loadConfig(configFile string) (*falconconfig.Registry, error) {
	// viper is used only to read FALCON_CONFIG_FILE; falconconfig owns
	// the typed accessors the engine reads (§9 "dynamic typing on config
	// values").
	v := viper.New()
	v.SetEnvPrefix("FALCON")
	v.AutomaticEnv()

	var reg *falconconfig.Registry
	var err error
	if configFile != "" {
		reg, err = falconconfig.Load(configFile)
	} else {
		reg, err = falconconfig.LoadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if v.IsSet("config_file") && configFile == "" {
		return falconconfig.Load(v.GetString("config_file"))
	}
	return reg, nil
}

func runServe(ctx context.Context, configFile, listenAddr string) error {
	reg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	if err := logger.Init(falconcfg.LogConfig{
		Dir:          reg.GetString("falcon_log_dir", ""),
		Format:       reg.GetString("falcon_log_format", "text"),
		Severity:     reg.GetString("falcon_log_level", falconcfg.INFO),
		MaxSizeMB:    uint32(reg.GetU32("falcon_log_max_size_mb", 100)),
		ReservedNum:  uint32(reg.GetU32("falcon_log_reserved_num", 5)),
		ReservedTime: uint32(reg.GetU32("falcon_log_reserved_time", 7)),
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	cacheRoot := reg.GetString("falcon_cache_root", "/var/lib/falcon/cache")
	cache, err := blockcache.NewManager(blockcache.Config{
		Root:         cacheRoot,
		DirNum:       uint32(reg.GetU32("falcon_cache_dir_num", 256)),
		CapacityByte: int64(reg.GetU64("falcon_cache_capacity_byte", 10<<30)),
		FreeRatio:    reg.GetF64("falcon_cache_free_ratio", 0.1),
		BgFreeRatio:  reg.GetF64("falcon_cache_bg_free_ratio", 0.2),
		EvictPeriod:  time.Duration(reg.GetU32("falcon_cache_evict_period_sec", 30)) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("building block cache: %w", err)
	}

	pool, err := membuf.New(int(reg.GetU32("falcon_block_size", 4<<20)), int(reg.GetU32("falcon_prealloc_blocks", 64)))
	if err != nil {
		return fmt.Errorf("building memory pool: %w", err)
	}

	workers, err := workerpool.NewStaticWorkerPool(
		uint32(reg.GetU32("falcon_priority_workers", 4)),
		uint32(reg.GetU32("falcon_normal_workers", 16)),
	)
	if err != nil {
		return fmt.Errorf("building worker pool: %w", err)
	}

	localEndpoint := reg.GetString("falcon_local_endpoint", listenAddr)
	peers := reg.GetStringList("falcon_cluster_view", nil)
	var nodes []membership.Node
	for i, endpoint := range peers {
		nodes = append(nodes, membership.Node{NodeID: uint32(i), Endpoint: endpoint})
	}
	localID := uint32(reg.GetU32("falcon_node_id", 0))
	source := membership.NewStatic(nodes, localID)

	rst := roster.New(source, rpcpeer.Dial, cacheRoot, localEndpoint)
	if err := rst.Start(ctx); err != nil {
		return fmt.Errorf("starting roster: %w", err)
	}
	defer rst.Stop()

	transport := metaclient.NewGRPCTransport()
	rtr := router.New(transport, reg.GetString("falcon_coordinator_endpoint", ""))
	if err := rtr.Refresh(ctx); err != nil {
		return fmt.Errorf("refreshing metadata router: %w", err)
	}
	meta := metaclient.New(transport, rtr)

	var blobs blobstore.Store
	if reg.GetBool("falcon_persist", false) {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("building GCS client: %w", err)
		}
		blobs = blobstore.NewGCSStore(gcsClient, reg.GetString("falcon_blob_bucket", ""))
	}

	metricsHandle, shutdownMetrics, err := stats.NewExporter(ctx, stats.ExporterConfig{
		UsePrometheus: reg.GetBool("falcon_use_prometheus", false),
		Port:          int(reg.GetU32("falcon_prometheus_port", 9091)),
	})
	if err != nil {
		return fmt.Errorf("building metrics exporter: %w", err)
	}
	defer shutdownMetrics(ctx)

	eng := engine.New(engine.Config{
		SmallFileThreshold: int64(reg.GetU64("falcon_small_file_threshold", 1<<20)),
		ReadPipelineBlocks: int(reg.GetU32("falcon_preblock_num", 3)),
		BlockSize:          int(reg.GetU32("falcon_block_size", 4<<20)),
		Persist:            reg.GetBool("falcon_persist", false),
		Async:              reg.GetBool("falcon_async", true),
		ToLocal:            reg.GetBool("falcon_to_local", false),
		IsInference:        reg.GetBool("falcon_is_inference", false),
		ParentPathLevel:    int(reg.GetU32("falcon_parent_path_level", 1)),
		MaxOpenInstances:   int64(reg.GetU64("falcon_max_open_instances", 0)),
		BRPCRetryNum:       int(reg.GetU32("brpc_retry_num", 0)),
	}, engine.Deps{
		Cache:   cache,
		Locks:   filelock.NewTable(),
		Pool:    pool,
		Roster:  rst,
		Meta:    meta,
		Blobs:   blobs,
		Workers: workers,
		Metrics: metricsHandle,
	})

	collector := stats.NewCollector(eng, time.Second)
	defer collector.Stop()

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	gs := grpc.NewServer()
	rpcpeer.RegisterServer(gs, eng)

	logger.Infof("falcon: serving node %d on %s", rst.LocalID(), listenAddr)

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Infof("falcon: shutting down")
		gs.GracefulStop()
		return nil
	case <-ctx.Done():
		gs.GracefulStop()
		return ctx.Err()
	}
}

func newStatsCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "poll a node's cluster stats once per second",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), endpoint)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "127.0.0.1:9090", "peer RPC endpoint to poll")
	return cmd
}

func runStats(ctx context.Context, endpoint string) error {
	anyClient, err := rpcpeer.Dial(endpoint)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	client := anyClient.(*rpcpeer.Client)
	defer client.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		resp, err := client.StatCluster(ctx, rpcpeer.StatClusterRequest{})
		if err != nil {
			return fmt.Errorf("stat_cluster: %w", err)
		}
		fmt.Fprintf(w, "NODE\tOPEN_FDS\tCACHE_USED\tCACHE_TOTAL\tREAD_OPS\tWRITE_OPS\n")
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\n",
			resp.NodeID, resp.OpenFDs, resp.CacheUsed, resp.CacheTotal, resp.ReadOps, resp.WriteOps)
		w.Flush()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
