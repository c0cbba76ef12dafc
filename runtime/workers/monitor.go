package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*MonitorWorker)(nil)

// MonitorWorker periodically logs presence, relay counters and process health.
type MonitorWorker struct {
	log      *slog.Logger
	interval time.Duration
	presence contract.PresenceReader
	counters *observability.Counters
}

func NewMonitorWorker(
	log *slog.Logger,
	interval time.Duration,
	presence contract.PresenceReader,
	counters *observability.Counters) *MonitorWorker {
	return &MonitorWorker{
		log:      log,
		interval: interval,
		presence: presence,
		counters: counters,
	}
}

func (w *MonitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *MonitorWorker) report(p *process.Process) {
	online, offline := countPresence(w.presence.Snapshot())
	stats := w.counters.GetLatest()

	attrs := []any{
		"online", online,
		"pending_offline", offline,
		"messages_relayed", stats.MessagesRelayed,
		"events_delivered", stats.EventsDelivered,
		"events_dropped", stats.EventsDropped,
		"commands_dropped", stats.CommandsDropped,
		"commands_rejected", stats.CommandsRejected,
		"goroutines", stats.NumGoroutine,
		"alloc_mb", stats.AllocMemMb,
	}

	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Warn("Failed to collect self stats", "error", err)
	} else {
		attrs = append(attrs, "rss_bytes", rss, "cpu_percent", cpu)
	}
	w.log.Info("Relay status", attrs...)
}

func countPresence(snapshot []domain.UserPresence) (online, offline int) {
	online = lo.CountBy(snapshot, func(p domain.UserPresence) bool { return p.IsOnline })
	return online, len(snapshot) - online
}

// selfStats retrieves memory and CPU usage of the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
