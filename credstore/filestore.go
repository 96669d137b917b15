package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const sessionFileName = "session.json"

var _ Storage = (*FileStore)(nil)

// FileStore keeps the key-value pairs in a single JSON file under the data
// directory. Writes go through a temp file and rename so a crash mid-write
// never leaves a half-written session behind.
type FileStore struct {
	path string
	lock sync.Mutex
}

// NewFileStore creates the data directory if needed and returns a store
// backed by <dir>/session.json.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("[NewFileStore] dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	return &FileStore{path: filepath.Join(dir, sessionFileName)}, nil
}

func (fs *FileStore) Get(key string) (string, bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (fs *FileStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, _ := fs.loadForWrite()
	values[key] = value
	return fs.save(values)
}

func (fs *FileStore) Remove(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, reset := fs.loadForWrite()
	if _, ok := values[key]; !ok && !reset {
		return nil
	}
	delete(values, key)
	return fs.save(values)
}

// loadForWrite reads the current values for a rewrite. An unreadable or
// corrupt file surfaces on reads, but it must not make writes fail forever:
// the next Set or Remove starts from an empty map and replaces the file.
// The second result reports that reset, so Remove rewrites even when the
// key is absent.
func (fs *FileStore) loadForWrite() (map[string]string, bool) {
	values, err := fs.load()
	if err != nil {
		return map[string]string{}, true
	}
	return values, false
}

func (fs *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session file")
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "parse session file")
	}
	return values, nil
}

func (fs *FileStore) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "encode session file")
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write session file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "replace session file")
	}
	return nil
}
