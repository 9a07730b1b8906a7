package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fundchain/storage"
)

var (
	// ErrOverlayClosed is returned when an overlay is used after Commit or Discard.
	ErrOverlayClosed = errors.New("state: overlay already closed")
	errEmptyKey      = errors.New("kv: key must not be empty")
)

// Manager exposes RLP-encoded key/value access over a storage backend.
// Writes made through the manager are applied immediately; use Begin to stage
// a group of writes that must land together.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) raw(hashed []byte) ([]byte, error) {
	data, err := m.db.Get(hashed)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the backend.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeInto(data, out)
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	return m.db.Delete(kvKey(key))
}

// KVAppend appends value to the byte slice list stored under key. Duplicate
// values are ignored to keep the index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return appendList(m, key, value)
}

// KVGetList decodes the RLP list stored under key into out, which must be a
// pointer to a slice. Missing keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	return getList(m, key, out)
}

// Begin starts an overlay that buffers writes until Commit.
func (m *Manager) Begin() *Overlay {
	return &Overlay{parent: m, writes: make(map[string]pendingWrite)}
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a Manager. Reads observe the overlay's own
// writes first. Commit flushes every write in one atomic batch; Discard drops
// them.
type Overlay struct {
	parent *Manager
	writes map[string]pendingWrite
	order  []string
	closed bool
}

func (o *Overlay) raw(hashed []byte) ([]byte, error) {
	if o.closed {
		return nil, ErrOverlayClosed
	}
	if w, ok := o.writes[string(hashed)]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.value, nil
	}
	return o.parent.raw(hashed)
}

func (o *Overlay) stage(hashed []byte, w pendingWrite) error {
	if o.closed {
		return ErrOverlayClosed
	}
	k := string(hashed)
	if _, seen := o.writes[k]; !seen {
		o.order = append(o.order, k)
	}
	o.writes[k] = w
	return nil
}

func (o *Overlay) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return o.stage(kvKey(key), pendingWrite{value: encoded})
}

func (o *Overlay) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := o.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeInto(data, out)
}

func (o *Overlay) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	return o.stage(kvKey(key), pendingWrite{deleted: true})
}

func (o *Overlay) KVAppend(key []byte, value []byte) error {
	return appendList(o, key, value)
}

func (o *Overlay) KVGetList(key []byte, out interface{}) error {
	return getList(o, key, out)
}

// Pending reports how many keys the overlay would write.
func (o *Overlay) Pending() int { return len(o.order) }

// Commit writes the buffered changes atomically and closes the overlay.
func (o *Overlay) Commit() error {
	if o.closed {
		return ErrOverlayClosed
	}
	batch := o.parent.db.NewBatch()
	for _, k := range o.order {
		w := o.writes[k]
		if w.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), w.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	o.closed = true
	o.writes = nil
	o.order = nil
	return nil
}

// Discard drops the buffered changes. It is safe to call after Commit.
func (o *Overlay) Discard() {
	o.closed = true
	o.writes = nil
	o.order = nil
}

type rawStore interface {
	raw(hashed []byte) ([]byte, error)
	KVPut(key []byte, value interface{}) error
}

func decodeInto(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func appendList(s rawStore, key []byte, value []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	data, err := s.raw(kvKey(key))
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return s.KVPut(key, list)
}

func getList(s rawStore, key []byte, out interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	data, err := s.raw(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
