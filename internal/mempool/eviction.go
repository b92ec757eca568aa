package mempool

import klog "github.com/Klingon-tech/klingnet-stake/internal/log"

// Evict drops the lowest-priority transactions until the pool holds at
// most its maximum size, and returns how many it dropped.
func (p *Pool) Evict() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	excess := len(p.entries) - p.maxSize
	if excess <= 0 {
		return 0
	}
	ranked := p.ranked()
	for _, e := range ranked[len(ranked)-excess:] {
		p.drop(e.hash)
	}
	klog.Mempool.Info().Int("evicted", excess).Int("remaining", len(p.entries)).Msg("Pool trimmed")
	return excess
}
