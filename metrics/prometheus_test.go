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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/taskstats/info"
)

type fakeProvider struct {
	latest map[uint32]info.TaskStats
}

func (p *fakeProvider) Latest() map[uint32]info.TaskStats {
	return p.latest
}

func gather(t *testing.T, provider statsProvider) map[string]*dto.MetricFamily {
	t.Helper()
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(NewTaskStatsCollector(provider)))
	families, err := registry.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func TestCollect(t *testing.T) {
	provider := &fakeProvider{latest: map[uint32]info.TaskStats{
		42: {
			Tid:     42,
			Command: "nginx",
			Cpu: info.Cpu{
				UserTime:   1500 * time.Millisecond,
				SystemTime: 500 * time.Millisecond,
			},
			ContextSwitches: info.ContextSwitches{Voluntary: 7, NonVoluntary: 3},
			Delays: info.Delays{
				Cpu:   info.DelayStat{Count: 10, Total: 250 * time.Millisecond},
				Blkio: info.DelayStat{Count: 2, Total: 40 * time.Millisecond},
			},
		},
	}}

	families := gather(t, provider)

	family, ok := families["taskstats_cpu_delay_seconds_total"]
	require.True(t, ok)
	require.Len(t, family.GetMetric(), 1)
	metric := family.GetMetric()[0]
	assert.InDelta(t, 0.25, metric.GetCounter().GetValue(), 1e-9)

	labels := map[string]string{}
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, "42", labels["tid"])
	assert.Equal(t, "nginx", labels["command"])

	family, ok = families["taskstats_context_switches_voluntary_total"]
	require.True(t, ok)
	assert.Equal(t, float64(7), family.GetMetric()[0].GetCounter().GetValue())

	family, ok = families["taskstats_scrape_error"]
	require.True(t, ok)
	assert.Equal(t, float64(0), family.GetMetric()[0].GetGauge().GetValue())
}

func TestCollectNoSamples(t *testing.T) {
	families := gather(t, &fakeProvider{})

	family, ok := families["taskstats_scrape_error"]
	require.True(t, ok)
	assert.Equal(t, float64(1), family.GetMetric()[0].GetGauge().GetValue())

	_, ok = families["taskstats_cpu_delay_seconds_total"]
	assert.False(t, ok)
}
