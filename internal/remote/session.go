package remote

import "sync"

// Session scopes the state that used to be process-wide: the cache of the
// last command uploaded to each (host, port, user) triple. Its lifetime is
// one logical test run; a fresh Session (or Reset) avoids stale-skip bugs
// across unrelated test cases that target the same machine.
type Session struct {
	mu          sync.Mutex
	lastCommand map[string]string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{lastCommand: make(map[string]string)}
}

// needsUpload reports whether the command text differs from the last one
// sent to the target, and records it as the new last command when it does.
// Commands against the same triple are issued sequentially by one caller,
// which is what makes the skip safe.
func (s *Session) needsUpload(target Target, command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := target.CacheKey()
	if s.lastCommand[key] == command {
		return false
	}
	s.lastCommand[key] = command
	return true
}

// forget drops the cached command for the target, forcing the next call to
// re-upload. Used when an upload fails partway.
func (s *Session) forget(target Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastCommand, target.CacheKey())
}

// Reset clears the whole cache. Callers reset between logical test runs.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommand = make(map[string]string)
}
