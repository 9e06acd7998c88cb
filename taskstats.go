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

// Package taskstats reads per-task and per-process delay accounting
// statistics from the Linux kernel over generic netlink.
package taskstats

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/google/taskstats/info"
	"github.com/google/taskstats/netlink"
)

// Client queries the kernel taskstats interface. A Client owns one netlink
// socket and performs one synchronous transaction per call; use independent
// Clients for concurrent queries.
type Client interface {
	// PidStats returns statistics for a single task (thread).
	PidStats(pid uint32) (info.TaskStats, error)

	// TgidStats returns statistics aggregated over a thread group
	// (process).
	TgidStats(tgid uint32) (info.TaskStats, error)

	// SetTimeout bounds every subsequent receive; a query whose reply
	// does not arrive in time fails with netlink.ErrTimeout.
	SetTimeout(timeout time.Duration) error

	// Close releases the netlink socket. Idempotent.
	Close() error
}

// New returns a Client backed by a freshly bound generic netlink socket.
// Requires CAP_NET_ADMIN and a kernel built with CONFIG_TASKSTATS.
func New() (Client, error) {
	client, err := netlink.New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a netlink based taskstats client")
	}
	klog.V(4).Info("Using a netlink-based taskstats client")
	return client, nil
}
