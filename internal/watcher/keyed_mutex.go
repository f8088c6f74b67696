package watcher

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per entity key so two concurrent deliveries for
// the same sale, order or token never interleave their read-modify-write
// sequences. Keys are sharded over a fixed set of mutexes; a collision only
// costs unnecessary serialization, never lost mutual exclusion.
type keyedMutex struct {
	shards []sync.Mutex
}

func newKeyedMutex(shards int) *keyedMutex {
	if shards <= 0 {
		shards = 64
	}
	return &keyedMutex{shards: make([]sync.Mutex, shards)}
}

func (k *keyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &k.shards[h.Sum32()%uint32(len(k.shards))]
}

func (k *keyedMutex) Lock(key string) {
	k.shard(key).Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.shard(key).Unlock()
}
