package repofake

import (
	"sync"

	"github.com/jrsteele09/go-superset-kernel/credentials"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory Repo. PutErr and DeleteErr let tests
// simulate a failing backend.
type FakeCredentialRepo struct {
	values    map[string]string
	lock      sync.RWMutex
	PutErr    error
	DeleteErr error
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		values: make(map[string]string),
	}
}

func (r *FakeCredentialRepo) Get(key string) (string, bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *FakeCredentialRepo) Put(values map[string]string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.PutErr != nil {
		return r.PutErr
	}
	for k, v := range values {
		r.values[k] = v
	}
	return nil
}

func (r *FakeCredentialRepo) Delete(keys ...string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	for _, k := range keys {
		delete(r.values, k)
	}
	return nil
}

// Snapshot copies the current contents.
func (r *FakeCredentialRepo) Snapshot() map[string]string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
