package ledger

import "sync"

// Lazy opens the ledger in a cache directory on first use, so that commands
// which never install or inspect anything leave the directory untouched.
// The first open attempt is final: a failure is returned on every later call.
type Lazy struct {
	cacheDir string

	mu     sync.Mutex
	tried  bool
	store  *Store
	err    error
	closed bool
}

// NewLazy returns an unopened ledger for cacheDir.
func NewLazy(cacheDir string) *Lazy {
	return &Lazy{cacheDir: cacheDir}
}

// Store opens and migrates the ledger if needed.
func (l *Lazy) Store() (*Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.tried {
		l.tried = true
		l.store, l.err = OpenIn(l.cacheDir)
	}
	return l.store, l.err
}

// Record implements the bootstrap recorder, opening the ledger first.
func (l *Lazy) Record(in Install) error {
	s, err := l.Store()
	if err != nil {
		return err
	}
	return s.Record(in)
}

// Close closes the ledger if it was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil || l.closed {
		return nil
	}
	l.closed = true
	return l.store.Close()
}
