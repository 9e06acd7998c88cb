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
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/google/taskstats/info"
)

// TaskStatsReader queries the kernel taskstats interface over one generic
// netlink socket. It performs exactly one blocking request/response
// transaction per call and is not safe for concurrent use.
type TaskStatsReader struct {
	familyID uint16
	conn     *Connection
}

// New opens and binds a generic netlink socket and resolves the TASKSTATS
// family id. The family id is assigned at kernel boot, so it is resolved once
// and cached for the lifetime of the reader.
func New() (*TaskStatsReader, error) {
	conn, err := newConnection()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a new connection")
	}

	id, err := getFamilyID(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to get netlink family id for task stats")
	}
	klog.V(4).Infof("Family id for taskstats: %d", id)
	return &TaskStatsReader{
		familyID: id,
		conn:     conn,
	}, nil
}

// PidStats returns the accounting record for a single task, e.g. one thread
// of a multithreaded process.
func (r *TaskStatsReader) PidStats(pid uint32) (info.TaskStats, error) {
	return r.stats(unix.TASKSTATS_CMD_ATTR_PID, pid)
}

// TgidStats returns the accounting record aggregated over all threads of a
// thread group, i.e. a process.
func (r *TaskStatsReader) TgidStats(tgid uint32) (info.TaskStats, error) {
	return r.stats(unix.TASKSTATS_CMD_ATTR_TGID, tgid)
}

func (r *TaskStatsReader) stats(attrType uint16, id uint32) (info.TaskStats, error) {
	msg, err := prepareStatsMessage(r.familyID, attrType, id)
	if err != nil {
		return info.TaskStats{}, err
	}
	err = r.conn.WriteMessage(msg.toRawMsg())
	if err != nil {
		return info.TaskStats{}, err
	}
	resp, err := readResponse(r.conn)
	if err != nil {
		return info.TaskStats{}, err
	}
	stats, err := parseStatsResp(resp)
	if err != nil {
		return info.TaskStats{}, err
	}
	klog.V(4).Infof("Task stats for %d: %+v", id, stats)
	return stats, nil
}

// SetTimeout bounds every subsequent receive. Retrying after ErrTimeout is
// the caller's decision; the reader never retries internally.
func (r *TaskStatsReader) SetTimeout(timeout time.Duration) error {
	return r.conn.SetReadTimeout(timeout)
}

// Close releases the socket. Safe to call more than once.
func (r *TaskStatsReader) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
