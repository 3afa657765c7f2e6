package credentials

// Repo is the key/value persistence behind a Store. Put and Delete must apply
// all keys or none.
type Repo interface {
	Get(key string) (string, bool, error)
	Put(values map[string]string) error
	Delete(keys ...string) error
}
