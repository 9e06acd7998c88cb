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

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/taskstats/info"
)

type printer struct {
	out io.Writer
}

func micros(d time.Duration) int64 {
	return d.Microseconds()
}

func nanos(d time.Duration) int64 {
	return d.Nanoseconds()
}

// printSummary writes one line per task with the most commonly watched
// counters.
func (p printer) printSummary(stats []info.TaskStats) error {
	w := tabwriter.NewWriter(p.out, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Task\tutime\tstime\trss\tvmem\tread\twrite\td:cpu\td:bio\td:swap\td:reclaim\t")
	for _, ts := range stats {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			ts.Tid,
			micros(ts.Cpu.UserTime),
			micros(ts.Cpu.SystemTime),
			ts.Memory.RssTotal,
			ts.Memory.VirtTotal,
			ts.Io.ReadBytes,
			ts.Io.WriteBytes,
			nanos(ts.Delays.Cpu.Total),
			nanos(ts.Delays.Blkio.Total),
			nanos(ts.Delays.Swapin.Total),
			nanos(ts.Delays.Freepages.Total))
	}
	return w.Flush()
}

// printDelays writes per-task delay accounting details: the average delay
// per event and the cumulative totals, in nanoseconds.
func (p printer) printDelays(stats []info.TaskStats) error {
	w := tabwriter.NewWriter(p.out, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Task\tcpu avg\tblkio avg\tswapin avg\treclaim avg\tcpu total\tblkio total\tswapin total\treclaim total\t")
	for _, ts := range stats {
		d := ts.Delays
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			ts.Tid,
			nanos(d.Cpu.Average()),
			nanos(d.Blkio.Average()),
			nanos(d.Swapin.Average()),
			nanos(d.Freepages.Average()),
			nanos(d.Cpu.Total),
			nanos(d.Blkio.Total),
			nanos(d.Swapin.Total),
			nanos(d.Freepages.Total))
	}
	return w.Flush()
}

// printFull dumps every decoded field, one section per group.
func (p printer) printFull(stats []info.TaskStats) error {
	for _, ts := range stats {
		fmt.Fprintf(p.out, "=== TID %d (%s) ===\n", ts.Tid, ts.Command)
		fmt.Fprintf(p.out, "Version: %d\n", ts.Version)
		fmt.Fprintf(p.out, "UID/GID: %d/%d\n", ts.UID, ts.GID)
		fmt.Fprintf(p.out, "PPID: %d\n", ts.PPid)
		fmt.Fprintf(p.out, "Began: %s\n", ts.BeginTime.Format(time.RFC3339))
		fmt.Fprintf(p.out, "Elapsed (us): %d\n", micros(ts.ElapsedTime))
		fmt.Fprintf(p.out, "--- CPU ---\n")
		fmt.Fprintf(p.out, "User Time (us): %d\n", micros(ts.Cpu.UserTime))
		fmt.Fprintf(p.out, "System Time (us): %d\n", micros(ts.Cpu.SystemTime))
		fmt.Fprintf(p.out, "Real Time (us): %d\n", micros(ts.Cpu.RealTime))
		fmt.Fprintf(p.out, "Virtual Time (us): %d\n", micros(ts.Cpu.VirtualTime))
		fmt.Fprintf(p.out, "--- Memory ---\n")
		fmt.Fprintf(p.out, "RSS (MB-us): %d\n", ts.Memory.RssTotal)
		fmt.Fprintf(p.out, "Virtual (MB-us): %d\n", ts.Memory.VirtTotal)
		fmt.Fprintf(p.out, "RSS High Water (KB): %d\n", ts.Memory.HighWaterRss)
		fmt.Fprintf(p.out, "Virtual High Water (KB): %d\n", ts.Memory.HighWaterVirt)
		fmt.Fprintf(p.out, "Minor Faults: %d\n", ts.Memory.MinorFaults)
		fmt.Fprintf(p.out, "Major Faults: %d\n", ts.Memory.MajorFaults)
		fmt.Fprintf(p.out, "--- I/O ---\n")
		fmt.Fprintf(p.out, "Read (bytes): %d\n", ts.Io.ReadBytes)
		fmt.Fprintf(p.out, "Write (bytes): %d\n", ts.Io.WriteBytes)
		fmt.Fprintf(p.out, "Read Syscalls: %d\n", ts.Io.ReadSyscalls)
		fmt.Fprintf(p.out, "Write Syscalls: %d\n", ts.Io.WriteSyscalls)
		fmt.Fprintf(p.out, "--- Block I/O ---\n")
		fmt.Fprintf(p.out, "Read (bytes): %d\n", ts.BlkIo.ReadBytes)
		fmt.Fprintf(p.out, "Write (bytes): %d\n", ts.BlkIo.WriteBytes)
		fmt.Fprintf(p.out, "Cancelled Write (bytes): %d\n", ts.BlkIo.CancelledWriteBytes)
		fmt.Fprintf(p.out, "--- Context Switches ---\n")
		fmt.Fprintf(p.out, "Voluntary: %d\n", ts.ContextSwitches.Voluntary)
		fmt.Fprintf(p.out, "Involuntary: %d\n", ts.ContextSwitches.NonVoluntary)
		fmt.Fprintf(p.out, "--- Delays ---\n")
		fmt.Fprintf(p.out, "CPU (count/ns): %d/%d\n", ts.Delays.Cpu.Count, nanos(ts.Delays.Cpu.Total))
		fmt.Fprintf(p.out, "Block I/O (count/ns): %d/%d\n", ts.Delays.Blkio.Count, nanos(ts.Delays.Blkio.Total))
		fmt.Fprintf(p.out, "Swap In (count/ns): %d/%d\n", ts.Delays.Swapin.Count, nanos(ts.Delays.Swapin.Total))
		fmt.Fprintf(p.out, "Memory Reclaim (count/ns): %d/%d\n", ts.Delays.Freepages.Count, nanos(ts.Delays.Freepages.Total))
	}
	return nil
}
