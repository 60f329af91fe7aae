/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"github.com/litecasthq/litecast/internal/events"
)

type subscriber interface {
	Subscribe(events.EventType) events.Subscriber
}

// CollectEngineMetrics maps engine events onto prometheus metrics. The
// subscriptions live for the process lifetime.
func CollectEngineMetrics(bus subscriber) {
	starts := bus.Subscribe(events.EventStreamStart)
	ends := bus.Subscribe(events.EventStreamEnd)
	stats := bus.Subscribe(events.EventStreamStats)
	exhaustions := bus.Subscribe(events.EventQuotaExhausted)

	go func() {
		for payload := range starts {
			SessionsActive.Inc()
			mode, _ := payload["mode"].(string)
			SessionsStartedTotal.WithLabelValues(mode).Inc()
		}
	}()
	go func() {
		for payload := range ends {
			SessionsActive.Dec()
			reason, _ := payload["reason"].(string)
			SessionsEndedTotal.WithLabelValues(reason).Inc()
		}
	}()
	go func() {
		for payload := range stats {
			if delta, ok := payload["delta"].(int64); ok && delta > 0 {
				EncodedSecondsTotal.Add(float64(delta))
			}
		}
	}()
	go func() {
		for range exhaustions {
			QuotaExhaustionsTotal.Inc()
		}
	}()
}
