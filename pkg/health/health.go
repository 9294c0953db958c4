// Package health probes the external services a sync depends on.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sipeed/ordersync/pkg/logger"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusUnreachable Status = "unreachable"
)

const defaultProbeTimeout = 10 * time.Second

// Probe checks one dependency and returns a short detail on success, such
// as the shop or spreadsheet name.
type Probe struct {
	Name  string
	Check func(ctx context.Context) (string, error)
}

type Result struct {
	Name    string
	Status  Status
	Detail  string
	Error   string
	Elapsed time.Duration
}

// Run executes every probe concurrently with a per-probe timeout and returns
// results in probe order. Failures are logged, never returned.
func Run(ctx context.Context, probes ...Probe) []Result {
	results := make([]Result, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = runProbe(ctx, p)
		}(i, p)
	}
	wg.Wait()

	for _, r := range results {
		fields := map[string]any{
			"probe":      r.Name,
			"status":     string(r.Status),
			"elapsed_ms": r.Elapsed.Milliseconds(),
		}
		if r.Status == StatusOK {
			fields["detail"] = r.Detail
			logger.InfoCF("health", "Startup check passed", fields)
			continue
		}
		fields["error"] = r.Error
		logger.WarnCF("health", "Startup check failed", fields)
	}
	return results
}

func runProbe(ctx context.Context, p Probe) Result {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	started := time.Now()
	detail, err := p.Check(probeCtx)
	r := Result{Name: p.Name, Elapsed: time.Since(started)}
	if err != nil {
		r.Status = StatusUnreachable
		r.Error = err.Error()
		return r
	}
	r.Status = StatusOK
	r.Detail = detail
	return r
}

// AllOK reports whether every result is ok.
func AllOK(results []Result) bool {
	for _, r := range results {
		if r.Status != StatusOK {
			return false
		}
	}
	return true
}
