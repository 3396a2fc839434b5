package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/senutpal/synod/internal/paxos"
)

// FileStorage keeps one JSON document per node under dir. Saves go to a
// temporary file which is synced and then renamed over the old document,
// so a crash leaves either the old state or the new one, never a mix.
type FileStorage struct {
	dir string

	mu     sync.Mutex
	closed bool
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (f *FileStorage) SaveAcceptorState(id paxos.NodeID, state paxos.AcceptorState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.load(id)
	if err != nil {
		return err
	}
	r.Acceptor = &state
	return f.save(id, r)
}

func (f *FileStorage) LoadAcceptorState(id paxos.NodeID) (paxos.AcceptorState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.load(id)
	if err != nil || r.Acceptor == nil {
		return paxos.AcceptorState{}, false, err
	}
	return *r.Acceptor, true, nil
}

func (f *FileStorage) SaveRound(id paxos.NodeID, round int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.load(id)
	if err != nil {
		return err
	}
	r.ProposerRnd = round
	return f.save(id, r)
}

func (f *FileStorage) LoadRound(id paxos.NodeID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.load(id)
	return r.ProposerRnd, err
}

func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileStorage) path(id paxos.NodeID) string {
	return filepath.Join(f.dir, url.PathEscape(string(id))+".json")
}

// load must be called with f.mu held. A missing file is an empty record.
func (f *FileStorage) load(id paxos.NodeID) (record, error) {
	if f.closed {
		return record{}, ErrClosed
	}
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return record{}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("read state for %s: %w", id, err)
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return record{}, fmt.Errorf("decode state for %s: %w", id, err)
	}
	return r, nil
}

// save must be called with f.mu held.
func (f *FileStorage) save(id paxos.NodeID, r record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".state-*")
	if err != nil {
		return fmt.Errorf("write state for %s: %w", id, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state for %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state for %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), f.path(id)); err != nil {
		return fmt.Errorf("install state for %s: %w", id, err)
	}
	return syncDir(f.dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync storage dir: %w", err)
	}
	return nil
}
