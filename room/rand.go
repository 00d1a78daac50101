package room

import (
	mathrand "math/rand"
	"sync"
)

// Rand is the randomness source behind first-mover draws and guest IDs.
// Injectable so tests can pin a seed. Not security-sensitive.
type Rand interface {
	Intn(n int) int
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *mathrand.Rand
}

func NewRand(seed int64) Rand {
	return &lockedRand{rnd: mathrand.New(mathrand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Intn(n)
}
