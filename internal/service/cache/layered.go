package cache

import "time"

// Layered reads through a process local cache in front of a shared one.
type Layered struct {
	local  *TTLCache
	shared BytesCache
	// localTTL caps how long a value read from shared stays local
	localTTL time.Duration
}

func NewLayered(local *TTLCache, shared BytesCache, localTTL time.Duration) *Layered {
	return &Layered{local: local, shared: shared, localTTL: localTTL}
}

// SetBytes writes the shared layer first.
func (l *Layered) SetBytes(key string, value []byte, ttl time.Duration) error {
	if err := l.shared.SetBytes(key, value, ttl); err != nil {
		return err
	}
	local := ttl
	if l.localTTL > 0 && (local <= 0 || local > l.localTTL) {
		local = l.localTTL
	}
	l.local.Set(key, value, local)
	return nil
}

func (l *Layered) GetBytes(key string) ([]byte, bool, error) {
	if b, ok, _ := l.local.GetBytes(key); ok {
		return b, true, nil
	}
	b, ok, err := l.shared.GetBytes(key)
	if err != nil || !ok {
		return nil, false, err
	}
	l.local.Set(key, b, l.localTTL)
	return b, true, nil
}
