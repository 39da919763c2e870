package booking

import (
	"hash/fnv"
	"sync"
)

// pairKey is the serialization unit of the engine: every stage transition
// and scheduler firing for one (user, show) pair runs under that pair's
// lock, while different pairs proceed independently.
func pairKey(userID, showID string) string {
	return userID + "|" + showID
}

// keyedMutex is a fixed set of striped mutexes indexed by key hash. Two
// distinct pairs may share a stripe and briefly serialize; that costs a
// little latency, never correctness.
type keyedMutex struct {
	stripes [64]sync.Mutex
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m
}
