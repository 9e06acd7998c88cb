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

package netlink

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/taskstats/info"
)

// Offsets into struct taskstats (linux/taskstats.h, version >= 8) on 64-bit
// Linux. The kernel hands the struct over as raw bytes with no layout
// negotiation, so every field is read at an explicit offset instead of
// casting the buffer; validateLayout recomputes the offsets from the field
// sizes and C alignment rules before the first decode and refuses to decode
// on any disagreement.
const (
	offVersion             = 0   // u16
	offExitcode            = 4   // u32
	offFlag                = 8   // u8
	offNice                = 9   // u8
	offCPUCount            = 16  // u64
	offCPUDelayTotal       = 24  // u64
	offBlkioCount          = 32  // u64
	offBlkioDelayTotal     = 40  // u64
	offSwapinCount         = 48  // u64
	offSwapinDelayTotal    = 56  // u64
	offCPURunRealTotal     = 64  // u64
	offCPURunVirtualTotal  = 72  // u64
	offComm                = 80  // char[32]
	offSched               = 112 // u8
	offPad                 = 113 // u8[3]
	offUID                 = 120 // u32, aligned(8) in the kernel header
	offGID                 = 124 // u32
	offPid                 = 128 // u32
	offPPid                = 132 // u32
	offBtime               = 136 // u32
	offEtime               = 144 // u64
	offUtime               = 152 // u64
	offStime               = 160 // u64
	offMinflt              = 168 // u64
	offMajflt              = 176 // u64
	offCoremem             = 184 // u64
	offVirtmem             = 192 // u64
	offHiwaterRss          = 200 // u64
	offHiwaterVM           = 208 // u64
	offReadChar            = 216 // u64
	offWriteChar           = 224 // u64
	offReadSyscalls        = 232 // u64
	offWriteSyscalls       = 240 // u64
	offReadBytes           = 248 // u64
	offWriteBytes          = 256 // u64
	offCancelledWriteBytes = 264 // u64
	offNvcsw               = 272 // u64
	offNivcsw              = 280 // u64
	offUtimeScaled         = 288 // u64
	offStimeScaled         = 296 // u64
	offCPUScaledRunReal    = 304 // u64
	offFreepagesCount      = 312 // u64
	offFreepagesDelayTotal = 320 // u64

	// Size of the version 8 struct. Newer kernels append fields and send
	// a larger record; the version 8 prefix is laid out identically.
	sizeofTaskstats = 328

	// Delay accounting fields appeared in version 8 (freepages counters).
	minTaskstatsVersion = 8
)

type taskstatsField struct {
	name   string
	offset int
	size   int
	align  int
}

// Ordered field list of the version 8 struct. The align column carries the C
// alignment of the field type, including the explicit aligned(8) attributes
// the kernel header places on ac_uid and ac_etime.
var taskstatsFields = []taskstatsField{
	{"version", offVersion, 2, 2},
	{"ac_exitcode", offExitcode, 4, 4},
	{"ac_flag", offFlag, 1, 1},
	{"ac_nice", offNice, 1, 1},
	{"cpu_count", offCPUCount, 8, 8},
	{"cpu_delay_total", offCPUDelayTotal, 8, 8},
	{"blkio_count", offBlkioCount, 8, 8},
	{"blkio_delay_total", offBlkioDelayTotal, 8, 8},
	{"swapin_count", offSwapinCount, 8, 8},
	{"swapin_delay_total", offSwapinDelayTotal, 8, 8},
	{"cpu_run_real_total", offCPURunRealTotal, 8, 8},
	{"cpu_run_virtual_total", offCPURunVirtualTotal, 8, 8},
	{"ac_comm", offComm, 32, 1},
	{"ac_sched", offSched, 1, 1},
	{"ac_pad", offPad, 3, 1},
	{"ac_uid", offUID, 4, 8},
	{"ac_gid", offGID, 4, 4},
	{"ac_pid", offPid, 4, 4},
	{"ac_ppid", offPPid, 4, 4},
	{"ac_btime", offBtime, 4, 4},
	{"ac_etime", offEtime, 8, 8},
	{"ac_utime", offUtime, 8, 8},
	{"ac_stime", offStime, 8, 8},
	{"ac_minflt", offMinflt, 8, 8},
	{"ac_majflt", offMajflt, 8, 8},
	{"coremem", offCoremem, 8, 8},
	{"virtmem", offVirtmem, 8, 8},
	{"hiwater_rss", offHiwaterRss, 8, 8},
	{"hiwater_vm", offHiwaterVM, 8, 8},
	{"read_char", offReadChar, 8, 8},
	{"write_char", offWriteChar, 8, 8},
	{"read_syscalls", offReadSyscalls, 8, 8},
	{"write_syscalls", offWriteSyscalls, 8, 8},
	{"read_bytes", offReadBytes, 8, 8},
	{"write_bytes", offWriteBytes, 8, 8},
	{"cancelled_write_bytes", offCancelledWriteBytes, 8, 8},
	{"nvcsw", offNvcsw, 8, 8},
	{"nivcsw", offNivcsw, 8, 8},
	{"ac_utimescaled", offUtimeScaled, 8, 8},
	{"ac_stimescaled", offStimeScaled, 8, 8},
	{"cpu_scaled_run_real_total", offCPUScaledRunReal, 8, 8},
	{"freepages_count", offFreepagesCount, 8, 8},
	{"freepages_delay_total", offFreepagesDelayTotal, 8, 8},
}

func alignUp(n, alignment int) int {
	return n + padding(n, alignment)
}

// validateTaskstatsLayout recomputes every field offset from the field sizes
// and alignments and compares the result against the offset table. A
// mismatch means the compiled-in table does not describe struct taskstats on
// this architecture and no field can be decoded reliably.
func validateTaskstatsLayout(fields []taskstatsField, size int) error {
	next := 0
	for _, f := range fields {
		expected := alignUp(next, f.align)
		if f.offset != expected {
			return fmt.Errorf("%w: field %s at offset %d, alignment rules place it at %d", ErrLayoutMismatch, f.name, f.offset, expected)
		}
		next = f.offset + f.size
	}
	if alignUp(next, 8) != size {
		return fmt.Errorf("%w: fields end at %d, struct size is %d", ErrLayoutMismatch, alignUp(next, 8), size)
	}
	return nil
}

var (
	layoutOnce sync.Once
	layoutErr  error
)

// decodeTaskStats decodes a raw struct taskstats record into the typed
// representation. The record must be at least the version 8 size; larger
// records from newer kernels carry appended fields that are ignored.
func decodeTaskStats(record []byte) (info.TaskStats, error) {
	var stats info.TaskStats
	layoutOnce.Do(func() {
		layoutErr = validateTaskstatsLayout(taskstatsFields, sizeofTaskstats)
	})
	if layoutErr != nil {
		return stats, layoutErr
	}
	if len(record) < sizeofTaskstats {
		return stats, fmt.Errorf("%w: stats record is %d bytes, want at least %d", ErrMalformed, len(record), sizeofTaskstats)
	}
	version := Endian.Uint16(record[offVersion:])
	if version < minTaskstatsVersion {
		return stats, fmt.Errorf("%w: kernel reports taskstats version %d, want at least %d", ErrMalformed, version, minTaskstatsVersion)
	}

	stats.Version = version
	stats.ExitCode = Endian.Uint32(record[offExitcode:])
	stats.Command = commString(record[offComm : offComm+32])
	stats.UID = Endian.Uint32(record[offUID:])
	stats.GID = Endian.Uint32(record[offGID:])
	stats.Tid = Endian.Uint32(record[offPid:])
	stats.PPid = Endian.Uint32(record[offPPid:])
	stats.BeginTime = time.Unix(int64(Endian.Uint32(record[offBtime:])), 0)
	stats.ElapsedTime = microseconds(Endian.Uint64(record[offEtime:]))

	stats.Cpu = info.Cpu{
		UserTime:    microseconds(Endian.Uint64(record[offUtime:])),
		SystemTime:  microseconds(Endian.Uint64(record[offStime:])),
		RealTime:    nanoseconds(Endian.Uint64(record[offCPURunRealTotal:])),
		VirtualTime: nanoseconds(Endian.Uint64(record[offCPURunVirtualTotal:])),
	}
	stats.Memory = info.Memory{
		RssTotal:      Endian.Uint64(record[offCoremem:]),
		VirtTotal:     Endian.Uint64(record[offVirtmem:]),
		HighWaterRss:  Endian.Uint64(record[offHiwaterRss:]),
		HighWaterVirt: Endian.Uint64(record[offHiwaterVM:]),
		MinorFaults:   Endian.Uint64(record[offMinflt:]),
		MajorFaults:   Endian.Uint64(record[offMajflt:]),
	}
	stats.Io = info.Io{
		ReadBytes:     Endian.Uint64(record[offReadChar:]),
		WriteBytes:    Endian.Uint64(record[offWriteChar:]),
		ReadSyscalls:  Endian.Uint64(record[offReadSyscalls:]),
		WriteSyscalls: Endian.Uint64(record[offWriteSyscalls:]),
	}
	stats.BlkIo = info.BlkIo{
		ReadBytes:           Endian.Uint64(record[offReadBytes:]),
		WriteBytes:          Endian.Uint64(record[offWriteBytes:]),
		CancelledWriteBytes: Endian.Uint64(record[offCancelledWriteBytes:]),
	}
	stats.ContextSwitches = info.ContextSwitches{
		Voluntary:    Endian.Uint64(record[offNvcsw:]),
		NonVoluntary: Endian.Uint64(record[offNivcsw:]),
	}
	stats.Delays = info.Delays{
		Cpu: info.DelayStat{
			Count: Endian.Uint64(record[offCPUCount:]),
			Total: nanoseconds(Endian.Uint64(record[offCPUDelayTotal:])),
		},
		Blkio: info.DelayStat{
			Count: Endian.Uint64(record[offBlkioCount:]),
			Total: nanoseconds(Endian.Uint64(record[offBlkioDelayTotal:])),
		},
		Swapin: info.DelayStat{
			Count: Endian.Uint64(record[offSwapinCount:]),
			Total: nanoseconds(Endian.Uint64(record[offSwapinDelayTotal:])),
		},
		Freepages: info.DelayStat{
			Count: Endian.Uint64(record[offFreepagesCount:]),
			Total: nanoseconds(Endian.Uint64(record[offFreepagesDelayTotal:])),
		},
	}
	return stats, nil
}

// commString converts the NUL-terminated ac_comm array to a string.
func commString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

func nanoseconds(n uint64) time.Duration {
	return time.Duration(n) * time.Nanosecond
}

func microseconds(n uint64) time.Duration {
	return time.Duration(n) * time.Microsecond
}
