package locker

import (
	"hash/fnv"
	"sync"
)

const keyedMutexShards = 16

// keyedMutex provides per-key mutual exclusion with sharded bookkeeping so
// unrelated files never contend on a single global lock.
type keyedMutex struct {
	shards [keyedMutexShards]keyedMutexShard
}

type keyedMutexShard struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	km := &keyedMutex{}
	for i := range km.shards {
		km.shards[i].entries = make(map[string]*keyedMutexEntry)
	}
	return km
}

func (km *keyedMutex) shard(key string) *keyedMutexShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &km.shards[h.Sum32()%keyedMutexShards]
}

// Lock acquires the mutex for key, creating the entry on first use.
func (km *keyedMutex) Lock(key string) {
	shard := km.shard(key)

	shard.mu.Lock()
	entry, ok := shard.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		shard.entries[key] = entry
	}
	entry.refs++
	shard.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry once no waiter
// remains.
func (km *keyedMutex) Unlock(key string) {
	shard := km.shard(key)

	shard.mu.Lock()
	entry, ok := shard.entries[key]
	if ok {
		entry.refs--
		if entry.refs <= 0 {
			delete(shard.entries, key)
		}
	}
	shard.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
