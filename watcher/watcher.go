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

// Package watcher periodically samples taskstats for a set of tasks and
// retains the latest sample per task.
package watcher

import (
	"errors"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/google/taskstats"
	"github.com/google/taskstats/info"
	"github.com/google/taskstats/netlink"
)

// Watcher polls a set of task ids on a fixed interval. Tasks that exit are
// dropped from the watch set on the next poll.
type Watcher struct {
	client       taskstats.Client
	pollInterval time.Duration

	quitChan      chan error // Used to cleanly shutdown housekeeping.
	lastErrorTime time.Time  // Limit errors to one per minute.

	dataLock sync.RWMutex
	pids     map[uint32]bool           // Watched tasks. Guarded by dataLock.
	latest   map[uint32]info.TaskStats // Last sample per task. Guarded by dataLock.
}

// New creates a watcher polling the given tasks through client. The caller
// retains ownership of the client and closes it after Stop.
func New(client taskstats.Client, pids []uint32, pollInterval time.Duration) *Watcher {
	w := &Watcher{
		client:       client,
		pollInterval: pollInterval,
		pids:         make(map[uint32]bool),
		latest:       make(map[uint32]info.TaskStats),
	}
	for _, pid := range pids {
		w.pids[pid] = true
	}
	return w
}

// Add puts a task into the watch set. It is sampled on the next poll.
func (w *Watcher) Add(pid uint32) {
	w.dataLock.Lock()
	defer w.dataLock.Unlock()
	w.pids[pid] = true
}

// Remove drops a task and its retained sample.
func (w *Watcher) Remove(pid uint32) {
	w.dataLock.Lock()
	defer w.dataLock.Unlock()
	delete(w.pids, pid)
	delete(w.latest, pid)
}

// Latest returns a copy of the most recent sample per watched task.
func (w *Watcher) Latest() map[uint32]info.TaskStats {
	w.dataLock.RLock()
	defer w.dataLock.RUnlock()
	out := make(map[uint32]info.TaskStats, len(w.latest))
	for pid, stats := range w.latest {
		out[pid] = stats
	}
	return out
}

func (w *Watcher) Start() error {
	w.quitChan = make(chan error)
	w.refresh()
	go w.housekeep()
	return nil
}

func (w *Watcher) Stop() {
	w.quitChan <- nil
	err := <-w.quitChan
	if err != nil {
		klog.Warningf("Failed to stop taskstats watcher: %s", err)
	}
}

func (w *Watcher) housekeep() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.refresh()
		case <-w.quitChan:
			w.quitChan <- nil
			klog.V(2).Infof("Exiting taskstats housekeeping")
			return
		}
	}
}

func (w *Watcher) refresh() {
	w.dataLock.RLock()
	pids := make([]uint32, 0, len(w.pids))
	for pid := range w.pids {
		pids = append(pids, pid)
	}
	w.dataLock.RUnlock()

	for _, pid := range pids {
		stats, err := w.client.TgidStats(pid)
		if err != nil {
			if errors.Is(err, netlink.ErrNoSuchProcess) {
				klog.V(2).Infof("Watched task %d exited", pid)
				w.Remove(pid)
				continue
			}
			if w.allowErrorLogging() {
				klog.Warningf("Error sampling taskstats for %d: %v", pid, err)
			}
			continue
		}
		w.dataLock.Lock()
		w.latest[pid] = stats
		w.dataLock.Unlock()
	}
}

func (w *Watcher) allowErrorLogging() bool {
	if time.Since(w.lastErrorTime) > time.Minute {
		w.lastErrorTime = time.Now()
		return true
	}
	return false
}
