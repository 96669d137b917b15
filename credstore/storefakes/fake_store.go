package storefakes

import (
	"sync"

	"github.com/vetkas2023/smart-fridge-frontend/credstore"
)

var _ credstore.Storage = (*FakeStore)(nil)

// FakeStore is an in-memory Storage for tests. Setting FailWith makes every
// call return that error, simulating broken persistence.
type FakeStore struct {
	values   map[string]string
	lock     sync.RWMutex
	FailWith error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (fs *FakeStore) Get(key string) (string, bool, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if fs.FailWith != nil {
		return "", false, fs.FailWith
	}
	v, ok := fs.values[key]
	return v, ok, nil
}

func (fs *FakeStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.FailWith != nil {
		return fs.FailWith
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Remove(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.FailWith != nil {
		return fs.FailWith
	}
	delete(fs.values, key)
	return nil
}

// Len reports the number of stored keys.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.values)
}
