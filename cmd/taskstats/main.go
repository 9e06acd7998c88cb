// Copyright 2024 Google Inc. All Rights Reserved.
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

// taskstats is a command line interface to Linux delay accounting.
//
// It prints a one-line summary per task by default, delay accounting
// details with -delays, and every decoded field with -verbose. With -port
// it keeps polling the given tasks and exports Prometheus metrics instead.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/google/taskstats"
	"github.com/google/taskstats/info"
	"github.com/google/taskstats/metrics"
	"github.com/google/taskstats/watcher"
)

var (
	argDelays       = flag.Bool("delays", false, "print delay accounting details instead of the summary line")
	argVerbose      = flag.Bool("verbose", false, "print every decoded field")
	argTgid         = flag.Bool("tgid", false, "query thread group aggregates instead of single tasks")
	argTimeout      = flag.Duration("timeout", 0, "receive timeout for kernel replies, 0 blocks indefinitely")
	argPort         = flag.Int("port", 0, "when set, keep polling and export Prometheus metrics on this port")
	argPollInterval = flag.Duration("poll_interval", 10*time.Second, "sampling interval in metrics export mode")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: taskstats [flags] <tid>...")
		os.Exit(1)
	}
	tids := make([]uint32, 0, flag.NArg())
	for _, arg := range flag.Args() {
		tid, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid task id %q\n", arg)
			os.Exit(1)
		}
		tids = append(tids, uint32(tid))
	}

	client, err := taskstats.New()
	if err != nil {
		klog.Fatalf("Failed to create taskstats client: %v", err)
	}
	defer client.Close()

	if *argTimeout > 0 {
		if err := client.SetTimeout(*argTimeout); err != nil {
			klog.Fatalf("Failed to set receive timeout: %v", err)
		}
	}

	if *argPort > 0 {
		exportMetrics(client, tids)
		return
	}

	stats := make([]info.TaskStats, 0, len(tids))
	for _, tid := range tids {
		var s info.TaskStats
		if *argTgid {
			s, err = client.TgidStats(tid)
		} else {
			s, err = client.PidStats(tid)
		}
		if err != nil {
			klog.Fatalf("Failed to query task %d: %v", tid, err)
		}
		stats = append(stats, s)
	}

	p := printer{out: os.Stdout}
	switch {
	case *argVerbose:
		err = p.printFull(stats)
	case *argDelays:
		err = p.printDelays(stats)
	default:
		err = p.printSummary(stats)
	}
	if err != nil {
		klog.Fatalf("Failed to write output: %v", err)
	}
}

func exportMetrics(client taskstats.Client, tids []uint32) {
	w := watcher.New(client, tids, *argPollInterval)
	if err := w.Start(); err != nil {
		klog.Fatalf("Failed to start taskstats watcher: %v", err)
	}
	defer w.Stop()

	prometheus.MustRegister(metrics.NewTaskStatsCollector(w))
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", *argPort)
	klog.Infof("Exporting taskstats metrics on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		klog.Fatalf("Failed to serve metrics: %v", err)
	}
}
