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

// Package metrics exposes taskstats samples as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/google/taskstats/info"
)

func formatTid(tid uint32) string {
	return strconv.FormatUint(uint64(tid), 10)
}

var baseLabelNames = []string{"tid", "command"}

// statsProvider hands the collector the most recent sample per watched task.
// *watcher.Watcher satisfies this through its Latest method.
type statsProvider interface {
	Latest() map[uint32]info.TaskStats
}

// taskMetric describes one exported metric derived from a task sample.
type taskMetric struct {
	name      string
	help      string
	valueType prometheus.ValueType
	getValue  func(stats *info.TaskStats) float64
}

func (metric *taskMetric) desc() *prometheus.Desc {
	return prometheus.NewDesc(metric.name, metric.help, baseLabelNames, nil)
}

// TaskStatsCollector implements prometheus.Collector over the latest
// taskstats samples of a statsProvider.
type TaskStatsCollector struct {
	provider    statsProvider
	errors      prometheus.Gauge
	taskMetrics []taskMetric
}

// NewTaskStatsCollector returns a collector exporting delay accounting and
// basic resource counters per watched task.
func NewTaskStatsCollector(provider statsProvider) *TaskStatsCollector {
	return &TaskStatsCollector{
		provider: provider,
		errors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskstats",
			Name:      "scrape_error",
			Help:      "1 if there was an error while getting task stats, 0 otherwise.",
		}),
		taskMetrics: []taskMetric{
			{
				name:      "taskstats_cpu_delay_seconds_total",
				help:      "Cumulative delay waiting for CPU while runnable.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return stats.Delays.Cpu.Total.Seconds()
				},
			},
			{
				name:      "taskstats_cpu_delay_count_total",
				help:      "Number of CPU delays recorded.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return float64(stats.Delays.Cpu.Count)
				},
			},
			{
				name:      "taskstats_blkio_delay_seconds_total",
				help:      "Cumulative delay waiting for synchronous block I/O.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return stats.Delays.Blkio.Total.Seconds()
				},
			},
			{
				name:      "taskstats_blkio_delay_count_total",
				help:      "Number of block I/O delays recorded.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return float64(stats.Delays.Blkio.Count)
				},
			},
			{
				name:      "taskstats_swapin_delay_seconds_total",
				help:      "Cumulative delay waiting for page fault I/O (swap in only).",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return stats.Delays.Swapin.Total.Seconds()
				},
			},
			{
				name:      "taskstats_freepages_delay_seconds_total",
				help:      "Cumulative delay waiting for memory reclaim.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return stats.Delays.Freepages.Total.Seconds()
				},
			},
			{
				name:      "taskstats_cpu_user_seconds_total",
				help:      "Cumulative user CPU time.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return stats.Cpu.UserTime.Seconds()
				},
			},
			{
				name:      "taskstats_cpu_system_seconds_total",
				help:      "Cumulative system CPU time.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return stats.Cpu.SystemTime.Seconds()
				},
			},
			{
				name:      "taskstats_context_switches_voluntary_total",
				help:      "Number of voluntary context switches.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return float64(stats.ContextSwitches.Voluntary)
				},
			},
			{
				name:      "taskstats_context_switches_involuntary_total",
				help:      "Number of involuntary context switches.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return float64(stats.ContextSwitches.NonVoluntary)
				},
			},
			{
				name:      "taskstats_major_page_faults_total",
				help:      "Number of major page faults.",
				valueType: prometheus.CounterValue,
				getValue: func(stats *info.TaskStats) float64 {
					return float64(stats.Memory.MajorFaults)
				},
			},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *TaskStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.errors.Describe(ch)
	for _, metric := range c.taskMetrics {
		ch <- metric.desc()
	}
}

// Collect implements prometheus.Collector.
func (c *TaskStatsCollector) Collect(ch chan<- prometheus.Metric) {
	c.errors.Set(0)
	latest := c.provider.Latest()
	if latest == nil {
		c.errors.Set(1)
		klog.Warning("Couldn't get task stats samples")
	}
	for _, stats := range latest {
		stats := stats
		labels := []string{formatTid(stats.Tid), stats.Command}
		for _, metric := range c.taskMetrics {
			ch <- prometheus.MustNewConstMetric(metric.desc(), metric.valueType, metric.getValue(&stats), labels...)
		}
	}
	c.errors.Collect(ch)
}
