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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/taskstats/info"
)

func sampleStats() []info.TaskStats {
	return []info.TaskStats{
		{
			Tid:     1234,
			Command: "nginx",
			Version: 10,
			Cpu: info.Cpu{
				UserTime:   1500 * time.Microsecond,
				SystemTime: 700 * time.Microsecond,
			},
			Io: info.Io{ReadBytes: 4096, WriteBytes: 512},
			Delays: info.Delays{
				Cpu:   info.DelayStat{Count: 4, Total: 2000 * time.Nanosecond},
				Blkio: info.DelayStat{Count: 1, Total: 900 * time.Nanosecond},
			},
		},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printer{out: &buf}.printSummary(sampleStats()))

	out := buf.String()
	assert.Contains(t, out, "Task")
	assert.Contains(t, out, "1234")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "4096")
}

func TestPrintDelays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printer{out: &buf}.printDelays(sampleStats()))

	out := buf.String()
	assert.Contains(t, out, "cpu avg")
	// 2000ns total over 4 events.
	assert.Contains(t, out, "500")
	assert.Contains(t, out, "2000")
}

func TestPrintFull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printer{out: &buf}.printFull(sampleStats()))

	out := buf.String()
	assert.Contains(t, out, "=== TID 1234 (nginx) ===")
	assert.Contains(t, out, "User Time (us): 1500")
	assert.Contains(t, out, "CPU (count/ns): 4/2000")
}
