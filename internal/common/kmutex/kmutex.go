// Package kmutex provides a mutex per string key, used to serialize
// per-tenant mutations so each tenant's commit order is well defined.
package kmutex

import "sync"

type KMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *KMutex {
	return &KMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

func (k *KMutex) Lock(key string)   { k.get(key).Lock() }
func (k *KMutex) Unlock(key string) { k.get(key).Unlock() }
