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

package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/taskstats/info"
	"github.com/google/taskstats/netlink"
)

// fakeClient serves canned stats per pid.
type fakeClient struct {
	stats map[uint32]info.TaskStats
}

func (c *fakeClient) PidStats(pid uint32) (info.TaskStats, error) {
	return c.TgidStats(pid)
}

func (c *fakeClient) TgidStats(tgid uint32) (info.TaskStats, error) {
	stats, ok := c.stats[tgid]
	if !ok {
		return info.TaskStats{}, netlink.ErrNoSuchProcess
	}
	return stats, nil
}

func (c *fakeClient) SetTimeout(timeout time.Duration) error { return nil }

func (c *fakeClient) Close() error { return nil }

func TestRefresh(t *testing.T) {
	client := &fakeClient{stats: map[uint32]info.TaskStats{
		100: {Tid: 100, Command: "nginx"},
		200: {Tid: 200, Command: "postgres"},
	}}
	w := New(client, []uint32{100, 200}, time.Minute)
	w.refresh()

	latest := w.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "nginx", latest[100].Command)
	assert.Equal(t, "postgres", latest[200].Command)
}

func TestRefreshDropsExitedTasks(t *testing.T) {
	client := &fakeClient{stats: map[uint32]info.TaskStats{
		100: {Tid: 100, Command: "nginx"},
	}}
	w := New(client, []uint32{100, 200}, time.Minute)
	w.refresh()
	require.Len(t, w.Latest(), 1)

	// Simulate pid 100 exiting between polls.
	delete(client.stats, 100)
	w.refresh()
	assert.Empty(t, w.Latest())
}

func TestAddRemove(t *testing.T) {
	client := &fakeClient{stats: map[uint32]info.TaskStats{
		300: {Tid: 300, Command: "redis"},
	}}
	w := New(client, nil, time.Minute)
	w.refresh()
	assert.Empty(t, w.Latest())

	w.Add(300)
	w.refresh()
	assert.Len(t, w.Latest(), 1)

	w.Remove(300)
	assert.Empty(t, w.Latest())
}

func TestStartStop(t *testing.T) {
	client := &fakeClient{stats: map[uint32]info.TaskStats{
		100: {Tid: 100, Command: "nginx"},
	}}
	w := New(client, []uint32{100}, 10*time.Millisecond)
	require.NoError(t, w.Start())
	// Start performs an initial refresh before housekeeping begins.
	assert.Len(t, w.Latest(), 1)
	w.Stop()
}
