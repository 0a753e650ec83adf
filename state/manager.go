package state

import (
	"errors"
	"sort"
	"sync"

	"patronledger/storage"
)

// ErrReadOnly is returned when a view transaction attempts a write.
var ErrReadOnly = errors.New("state: write inside read-only transaction")

// Manager serialises ledger transactions over a key-value database. Update
// runs the supplied function against a staging transaction and commits all
// writes as one batch, or none when the function errors; View runs it with
// writes rejected. Mutual exclusion across transactions gives the engine the
// serialisability it requires.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager wraps the database in a transaction manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Update executes fn inside a read-write transaction. Staged writes are only
// applied, atomically, when fn returns nil.
func (m *Manager) Update(fn func(*Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newTx(m.db, false)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View executes fn inside a read-only transaction.
func (m *Manager) View(fn func(*Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(newTx(m.db, true))
}

// Close releases the underlying database.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Close()
}

// Tx is a staging transaction: reads observe staged writes first, then the
// database; writes stay in memory until commit.
type Tx struct {
	db       storage.Database
	readOnly bool
	writes   map[string][]byte
	deletes  map[string]struct{}
}

func newTx(db storage.Database, readOnly bool) *Tx {
	return &Tx{
		db:       db,
		readOnly: readOnly,
		writes:   make(map[string][]byte),
		deletes:  make(map[string]struct{}),
	}
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if _, ok := tx.deletes[k]; ok {
		return nil, false, nil
	}
	if value, ok := tx.writes[k]; ok {
		return append([]byte(nil), value...), true, nil
	}
	return tx.db.Get(key)
}

func (tx *Tx) put(key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	k := string(key)
	delete(tx.deletes, k)
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
	return nil
}

func (tx *Tx) commit() error {
	if len(tx.writes) == 0 && len(tx.deletes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.writes)+len(tx.deletes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	for k := range tx.deletes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]storage.BatchOp, 0, len(keys))
	for _, k := range keys {
		if _, ok := tx.deletes[k]; ok {
			ops = append(ops, storage.BatchOp{Key: []byte(k)})
			continue
		}
		ops = append(ops, storage.BatchOp{Key: []byte(k), Value: tx.writes[k]})
	}
	return tx.db.WriteBatch(ops)
}
