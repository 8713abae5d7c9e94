package memorystore

import "sync"

// keyedMutex serializes writers per key in strict FIFO order while leaving
// different keys fully independent. Each waiter installs its own turn
// channel, waits for the previous holder's channel to close, and closes its
// own when done. The per-key entries grow with the number of distinct keys
// ever seen; that tradeoff is accepted.
type keyedMutex struct {
	mtx     sync.Mutex
	pending map[string]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		pending: map[string]chan struct{}{},
	}
}

// Lock blocks until every earlier writer for key has finished, then returns
// the function that releases the turn to the next waiter.
func (k *keyedMutex) Lock(key string) func() {
	k.mtx.Lock()
	prev := k.pending[key]
	turn := make(chan struct{})
	k.pending[key] = turn
	k.mtx.Unlock()

	if prev != nil {
		<-prev
	}

	return func() {
		close(turn)
	}
}
