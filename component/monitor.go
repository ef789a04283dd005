package component

import (
	"log/slog"
	"time"
)

// Monitor receives progress notices while a component tree is being
// initialized or started.
type Monitor interface {
	Begin(task string)
	End(task string, err error)
}

// NopMonitor discards all progress notices.
type NopMonitor struct{}

func (NopMonitor) Begin(string)      {}
func (NopMonitor) End(string, error) {}

// LogMonitor writes progress notices to a logger with the elapsed time of each task.
type LogMonitor struct {
	logger *slog.Logger
	starts map[string]time.Time
}

// NewLogMonitor creates a monitor that logs at info level. It is intended for a
// single startup sequence and is not safe for concurrent use.
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger, starts: make(map[string]time.Time)}
}

func (m *LogMonitor) Begin(task string) {
	m.starts[task] = time.Now()
	m.logger.Info("Starting", "task", task)
}

func (m *LogMonitor) End(task string, err error) {
	var elapsed time.Duration
	if started, ok := m.starts[task]; ok {
		elapsed = time.Since(started)
		delete(m.starts, task)
	}
	if err != nil {
		m.logger.Error("Failed", "task", task, "elapsed", elapsed, "error", err)
		return
	}
	m.logger.Info("Completed", "task", task, "elapsed", elapsed)
}

func orNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}
