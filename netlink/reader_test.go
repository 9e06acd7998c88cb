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
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openReader returns a reader against the live kernel, skipping the test on
// hosts where the taskstats interface is unavailable or the process lacks
// CAP_NET_ADMIN.
func openReader(t *testing.T) *TaskStatsReader {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("taskstats tests require root")
	}
	r, err := New()
	if errors.Is(err, ErrFamilyNotFound) || errors.Is(err, ErrUnsupported) {
		t.Skipf("taskstats not available on this host: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPidStatsSelf(t *testing.T) {
	r := openReader(t)
	stats, err := r.PidStats(uint32(os.Getpid()))
	if errors.Is(err, ErrPermissionDenied) {
		t.Skipf("no capability to query taskstats: %v", err)
	}
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.Version, uint16(8))
	assert.Equal(t, uint32(os.Getpid()), stats.Tid)
	assert.NotEmpty(t, stats.Command)
	assert.Equal(t, uint32(os.Getuid()), stats.UID)
	assert.Greater(t, int64(stats.ElapsedTime), int64(0))
	// The test binary has burned some CPU by now.
	assert.Greater(t, int64(stats.Cpu.UserTime+stats.Cpu.SystemTime), int64(0))
}

func TestTgidStatsSelf(t *testing.T) {
	r := openReader(t)
	stats, err := r.TgidStats(uint32(os.Getpid()))
	if errors.Is(err, ErrPermissionDenied) {
		t.Skipf("no capability to query taskstats: %v", err)
	}
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.Version, uint16(8))
	assert.Equal(t, uint32(os.Getpid()), stats.Tid)
}

func TestPidStatsNoSuchProcess(t *testing.T) {
	r := openReader(t)

	// Run a short-lived child and query its pid after it exited.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	pid := uint32(cmd.Process.Pid)

	_, err := r.PidStats(pid)
	if errors.Is(err, ErrPermissionDenied) {
		t.Skipf("no capability to query taskstats: %v", err)
	}
	assert.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestPidStatsUnprivileged(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("test requires running without CAP_NET_ADMIN")
	}
	r, err := New()
	if errors.Is(err, ErrFamilyNotFound) || errors.Is(err, ErrUnsupported) {
		t.Skipf("taskstats not available on this host: %v", err)
	}
	require.NoError(t, err)
	defer r.Close()

	// Unprivileged processes may not query the taskstats interface unless
	// the binary carries the capability.
	_, err = r.PidStats(uint32(os.Getpid()))
	if err != nil {
		assert.ErrorIs(t, err, ErrPermissionDenied)
	}
}

func TestCloseIdempotent(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("taskstats tests require root")
	}
	r, err := New()
	if errors.Is(err, ErrFamilyNotFound) || errors.Is(err, ErrUnsupported) {
		t.Skipf("taskstats not available on this host: %v", err)
	}
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestSetTimeout(t *testing.T) {
	r := openReader(t)
	assert.NoError(t, r.SetTimeout(100*time.Millisecond))
	assert.NoError(t, r.SetTimeout(0))
}
