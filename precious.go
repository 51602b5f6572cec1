package objbridge

import (
	"fmt"
	"sync"
)

// preciousToken identifies one preserved host value.
type preciousToken uint64

// preciousRegistry anchors host values that guest-side objects keep alive.
// The host heap is garbage collected and unaware of guest references, so
// every host value boxed into a capsule is preserved here and released
// exactly once when the capsule is destroyed. Double releases are a bug and
// fail loudly.
type preciousRegistry struct {
	mu      sync.Mutex
	next    preciousToken
	entries map[preciousToken]Value
}

func newPreciousRegistry() *preciousRegistry {
	return &preciousRegistry{entries: make(map[preciousToken]Value)}
}

// preserve anchors v and returns its token.
func (p *preciousRegistry) preserve(v Value) preciousToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.entries[p.next] = v
	return p.next
}

// lookup returns the preserved value for a live token.
func (p *preciousRegistry) lookup(tok preciousToken) (Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.entries[tok]
	return v, ok
}

// release drops the anchor. Releasing a token twice panics: it means two
// owners believed they held the same preservation.
func (p *preciousRegistry) release(tok preciousToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[tok]; !ok {
		panic(fmt.Sprintf("objbridge: double release of preserved value %d", tok))
	}
	delete(p.entries, tok)
}

// live returns the number of anchored values.
func (p *preciousRegistry) live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
