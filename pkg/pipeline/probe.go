package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// prober measures would-be latencies for scoreboard candidates that are not
// executed. Probes never affect routing.
type prober struct {
	mu      sync.Mutex
	results map[string]time.Duration
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// startProbes launches one tiny request per tagged candidate other than
// selected. Wait must be called before the results are read.
func startProbes(ctx context.Context, provider adapter.Provider, reg *registry.Registry, intent schema.Intent, selected string, timeout time.Duration) *prober {
	var pctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		pctx, cancel = context.WithCancel(ctx)
	}
	group, gctx := errgroup.WithContext(pctx)

	p := &prober{
		results: make(map[string]time.Duration),
		group:   group,
		cancel:  cancel,
	}

	ping := []adapter.Message{{Role: adapter.RoleUser, Content: "ping"}}
	for _, b := range reg.Tagged(intent) {
		if b.ID == selected {
			continue
		}
		id := b.ID
		group.Go(func() error {
			started := time.Now()
			if _, err := provider.Call(gctx, id, ping, 1, 0); err != nil {
				return nil
			}
			p.mu.Lock()
			p.results[id] = time.Since(started)
			p.mu.Unlock()
			return nil
		})
	}
	return p
}

// Wait joins every probe and returns the measured latencies.
func (p *prober) Wait() map[string]time.Duration {
	if p == nil {
		return nil
	}
	_ = p.group.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]time.Duration, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	return out
}

// Stop cancels outstanding probes and joins them.
func (p *prober) Stop() {
	if p == nil {
		return
	}
	p.cancel()
	_ = p.group.Wait()
}
