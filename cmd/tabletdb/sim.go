// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/tabletdb/tabletdb"
)

var simConfig struct {
	tablets      int
	dirs         int
	duration     time.Duration
	interval     time.Duration
	rowsetBytes  int
	workers      int
	deletionRate int
	verbose      bool
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "simulate ingestion against the compaction control plane",
	Long: `
Runs synthetic ingestion against a fleet of in-memory tablets: fragment
rowsets arrive at a fixed interval on randomly chosen tablets while the
compaction scheduler folds them in the background. Prints a summary of the
scheduling activity when the run ends.
`,
	Run: runSim,
}

func init() {
	simCmd.Flags().IntVar(
		&simConfig.tablets, "tablets", 16, "number of tablets")
	simCmd.Flags().IntVar(
		&simConfig.dirs, "dirs", 2, "number of data directories")
	simCmd.Flags().DurationVarP(
		&simConfig.duration, "duration", "d", 10*time.Second, "how long to ingest")
	simCmd.Flags().DurationVar(
		&simConfig.interval, "interval", time.Millisecond, "delay between ingested rowsets")
	simCmd.Flags().IntVar(
		&simConfig.rowsetBytes, "rowset-bytes", 4<<20, "data size of each ingested rowset")
	simCmd.Flags().IntVarP(
		&simConfig.workers, "workers", "c", 4, "compaction pool workers")
	simCmd.Flags().IntVar(
		&simConfig.deletionRate, "deletion-rate", 0, "stale rowset deletion rate in bytes/s (0 for unpaced)")
	simCmd.Flags().BoolVarP(
		&simConfig.verbose, "verbose", "v", false, "log every compaction event")
}

func runSim(cmd *cobra.Command, args []string) {
	var logger tabletdb.Logger = tabletdb.NoopLogger{}
	if simConfig.verbose {
		logger = tabletdb.DefaultLogger{}
	}

	var submitted, succeeded, failed, removed atomic.Int64
	listener := tabletdb.EventListener{
		CompactionSubmit: func(info tabletdb.CompactionSubmitInfo) {
			submitted.Add(1)
			if simConfig.verbose {
				logger.Infof("%s", info)
			}
		},
		CompactionEnd: func(info tabletdb.CompactionEndInfo) {
			if info.Err != nil {
				failed.Add(1)
			} else {
				succeeded.Add(1)
			}
			if simConfig.verbose {
				logger.Infof("%s", info)
			}
		},
		RowsetDeleted: func(info tabletdb.RowsetDeleteInfo) {
			removed.Add(1)
			if simConfig.verbose {
				logger.Infof("%s", info)
			}
		},
	}

	opts := (&tabletdb.Options{
		Logger:                   logger,
		EventListener:            &listener,
		MaxConcurrentCompactions: simConfig.workers,
		TargetRowsetDeletionRate: simConfig.deletionRate,
	}).EnsureDefaults()

	manager := tabletdb.NewCompactionManager(opts)
	pool := tabletdb.NewCompactionPool(simConfig.workers, opts.PoolQueueSize)
	cleaner := tabletdb.OpenCleanupManager(opts, manager.Metrics())
	sched := tabletdb.NewCompactionScheduler(opts, manager, pool, cleaner)
	sched.Start()

	dirs := make([]*tabletdb.DataDir, simConfig.dirs)
	for i := range dirs {
		dirs[i] = tabletdb.NewDataDir(fmt.Sprintf("/data/d%d", i), 0)
	}
	tablets := make([]*tabletdb.Tablet, simConfig.tablets)
	nextVersion := make([]int64, simConfig.tablets)
	for i := range tablets {
		tablets[i] = tabletdb.NewTablet(opts, tabletdb.TabletID(i+1), dirs[i%len(dirs)])
		nextVersion[i] = 1
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()
	ingested := 0
	for time.Since(start) < simConfig.duration {
		i := rng.Intn(len(tablets))
		t := tablets[i]
		v := nextVersion[i]
		nextVersion[i]++
		t.AddRowset(tabletdb.NewRowset(opts, t.DataDir(), tabletdb.RowsetMeta{
			RowsetID:    t.NextRowsetID(),
			TabletID:    t.ID(),
			Version:     tabletdb.Version{Start: v, End: v},
			NumSegments: 1,
			NumRows:     uint64(1 + rng.Intn(10000)),
			DataBytes:   uint64(simConfig.rowsetBytes),
		}))
		manager.SubmitTablet(t)
		ingested++
		time.Sleep(simConfig.interval)
	}

	// Let the backlog drain before tearing down.
	for manager.CandidatesCount() > 0 || manager.RunningTaskCount() > 0 {
		sched.Notify()
		time.Sleep(10 * time.Millisecond)
	}
	sched.Stop()
	pool.Close()
	cleaner.Close()

	remaining := 0
	for _, t := range tablets {
		remaining += t.NumRowsets()
	}
	elapsed := time.Since(start).Seconds()
	fmt.Printf("ingested %d rowsets across %d tablets in %.1fs\n", ingested, len(tablets), elapsed)
	fmt.Printf("rounds %d, submitted %d, succeeded %d, failed %d\n",
		sched.Round(), submitted.Load(), succeeded.Load(), failed.Load())
	fmt.Printf("rowsets remaining %d, stale rowsets removed %d\n", remaining, removed.Load())
	for _, d := range dirs {
		fmt.Printf("  %s: %d bytes used\n", d.Path(), d.UsedBytes())
	}
}
