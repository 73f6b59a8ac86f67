// Package idgen issues time-ordered message ids.
package idgen

import (
	"fmt"
	"sync"

	sf "github.com/tinode/snowflake"
	"github.com/vedran77/consult/internal/domain"
)

type Generator struct {
	mu  sync.Mutex
	seq *sf.SnowFlake
}

// New creates a generator for workerID. Each process sharing a database must
// use a distinct worker id.
func New(workerID uint) (*Generator, error) {
	seq, err := sf.NewSnowFlake(uint32(workerID))
	if err != nil {
		return nil, fmt.Errorf("snowflake: %w", err)
	}
	return &Generator{seq: seq}, nil
}

func (g *Generator) Next() (domain.MessageID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := g.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("snowflake: %w", err)
	}
	return domain.MessageID(int64(id)), nil
}
