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

package info

import (
	"time"
)

// DelayStat holds one delay accounting counter pair: the number of delays
// recorded and their cumulative duration.
type DelayStat struct {
	// Number of delay values recorded.
	Count uint64 `json:"count"`

	// Cumulative delay.
	Total time.Duration `json:"total"`
}

// Average returns the mean delay per recorded event. Returns zero when no
// delays have been recorded.
func (d DelayStat) Average() time.Duration {
	if d.Count == 0 {
		return 0
	}
	return d.Total / time.Duration(d.Count)
}

// Delays holds the delay accounting counters of a task, one DelayStat per
// resource the task can wait on.
type Delays struct {
	// Delay waiting for CPU, while runnable.
	Cpu DelayStat `json:"cpu"`

	// Delay waiting for synchronous block I/O to complete.
	Blkio DelayStat `json:"blkio"`

	// Delay waiting for page fault I/O (swap in only).
	Swapin DelayStat `json:"swapin"`

	// Delay waiting for memory reclaim.
	Freepages DelayStat `json:"freepages"`
}

// Cpu holds the basic CPU time accounting of a task.
type Cpu struct {
	// User CPU time.
	UserTime time.Duration `json:"user_time"`

	// System CPU time.
	SystemTime time.Duration `json:"system_time"`

	// Wall-clock running time.
	RealTime time.Duration `json:"real_time"`

	// Virtual running time.
	VirtualTime time.Duration `json:"virtual_time"`
}

// Memory holds memory accounting of a task.
type Memory struct {
	// Accumulated RSS usage over the lifetime of a task, in MBytes-usecs.
	RssTotal uint64 `json:"rss_total"`

	// Accumulated virtual memory usage, in MBytes-usecs.
	VirtTotal uint64 `json:"virt_total"`

	// High-watermark of RSS usage, in KBytes.
	HighWaterRss uint64 `json:"high_water_rss"`

	// High-watermark of virtual memory usage, in KBytes.
	HighWaterVirt uint64 `json:"high_water_virt"`

	// Number of minor page faults.
	MinorFaults uint64 `json:"minor_faults"`

	// Number of major page faults.
	MajorFaults uint64 `json:"major_faults"`
}

// Io holds I/O accounting of a task at the syscall surface.
type Io struct {
	// Bytes read through syscalls, including terminal and page cache I/O.
	ReadBytes uint64 `json:"read_bytes"`

	// Bytes written through syscalls.
	WriteBytes uint64 `json:"write_bytes"`

	// Number of read syscalls.
	ReadSyscalls uint64 `json:"read_syscalls"`

	// Number of write syscalls.
	WriteSyscalls uint64 `json:"write_syscalls"`
}

// BlkIo holds I/O accounting of a task at the block device level.
type BlkIo struct {
	// Bytes of block I/O read.
	ReadBytes uint64 `json:"read_bytes"`

	// Bytes of block I/O written.
	WriteBytes uint64 `json:"write_bytes"`

	// Bytes of cancelled (truncated) writes.
	CancelledWriteBytes uint64 `json:"cancelled_write_bytes"`
}

// ContextSwitches holds the context switch counters of a task.
type ContextSwitches struct {
	// Voluntary context switches.
	Voluntary uint64 `json:"voluntary"`

	// Involuntary context switches.
	NonVoluntary uint64 `json:"non_voluntary"`
}

// TaskStats is the decoded per-task accounting record reported by the kernel
// taskstats interface. For a thread group query the counters are aggregated
// over all threads of the group.
type TaskStats struct {
	// Version of the kernel taskstats structure the record was decoded from.
	Version uint16 `json:"version"`

	// The target task ID (or thread group ID for TgidStats).
	Tid uint32 `json:"tid"`

	// Name of the task's executable.
	Command string `json:"command"`

	// User and group id the task runs as.
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`

	// Parent process id.
	PPid uint32 `json:"ppid"`

	// Time the task began.
	BeginTime time.Time `json:"begin_time"`

	// Elapsed wall-clock time since the task began.
	ElapsedTime time.Duration `json:"elapsed_time"`

	// Exit code of an exited task, valid for exit events only.
	ExitCode uint32 `json:"exit_code"`

	Cpu             Cpu             `json:"cpu"`
	Memory          Memory          `json:"memory"`
	Io              Io              `json:"io"`
	BlkIo           BlkIo           `json:"blkio"`
	ContextSwitches ContextSwitches `json:"context_switches"`
	Delays          Delays          `json:"delays"`
}
