package storage

import "sync"

// memoryDB is an in-process Database, adapted from the teacher's
// MemDatabase (storage/database/db_manager.go's GetMemDB) for tests and
// ephemeral/testnet nodes that don't need durability across restarts.
type memoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryDatabase creates an empty in-memory Database.
func NewMemoryDatabase() Database {
	return &memoryDB{data: make(map[string][]byte)}
}

func (m *memoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *memoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *memoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memoryDB) Close() {}

func (m *memoryDB) NewBatch() Batch { return &memoryBatch{db: m} }

type memoryOp struct {
	key     []byte
	value   []byte
	deleted bool
}

type memoryBatch struct {
	db   *memoryDB
	ops  []memoryOp
	size int
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{key: key, value: value})
	b.size += len(value)
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{key: key, deleted: true})
	b.size++
	return nil
}

func (b *memoryBatch) Write() error {
	for _, op := range b.ops {
		if op.deleted {
			if err := b.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBatch) ValueSize() int { return b.size }

func (b *memoryBatch) Reset() { b.ops = nil; b.size = 0 }
