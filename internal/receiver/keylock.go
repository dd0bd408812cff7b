package receiver

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyLocks is a striped mutex set. Two equal keys always map to the same
// mutex; distinct keys rarely contend.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyLocks) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &k.stripes[h.Sum32()%lockStripes]
}
