package engine

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out correlation ids for dispatch attempts and feed
// clients.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator is the production IDGenerator. UUIDv7 ids carry their
// creation time, so they order naturally in logs.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator replays a list of ids and panics once the list runs out,
// which flags a test that generated more ids than it planned for.
type FixedGenerator struct {
	mu   sync.Mutex
	next []string
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{next: append([]string(nil), ids...)}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.next) == 0 {
		panic("engine: FixedGenerator exhausted")
	}
	id := g.next[0]
	g.next = g.next[1:]
	return id
}

// Remaining reports how many ids are left.
func (g *FixedGenerator) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.next)
}
