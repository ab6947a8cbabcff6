package ledger

import (
	"TxLedger/internal/event"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// shardCount must stay a power of two so the shard index is a mask.
const shardCount = 64

// Ref is a handle to a single stored entry. Every read-modify-write on the
// entry goes through Update and holds the entry's own lock, so concurrent
// readers never observe a half-applied change.
type Ref[T any] struct {
	mu  sync.Mutex
	val T
}

// Update runs fn with exclusive access to the entry.
func (r *Ref[T]) Update(fn func(*T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.val)
}

// Snapshot returns a copy of the entry.
func (r *Ref[T]) Snapshot() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.val
}

type shard[K ~uint16 | ~uint32, T any] struct {
	mu   sync.RWMutex
	refs map[K]*Ref[T]
}

// shardedMap spreads keys over independently locked shards. The shard lock
// only guards membership; values are guarded by their Ref.
type shardedMap[K ~uint16 | ~uint32, T any] struct {
	shards [shardCount]shard[K, T]
}

func newShardedMap[K ~uint16 | ~uint32, T any]() *shardedMap[K, T] {
	m := &shardedMap[K, T]{}
	for i := range m.shards {
		m.shards[i].refs = make(map[K]*Ref[T])
	}
	return m
}

func (m *shardedMap[K, T]) shardFor(key K) *shard[K, T] {
	return &m.shards[uint32(key)&(shardCount-1)]
}

func (m *shardedMap[K, T]) get(key K) (*Ref[T], bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.refs[key]
	return ref, ok
}

// getOrInsert returns the existing entry for key, or stores init() and
// returns it. The second result is true when a new entry was stored.
func (m *shardedMap[K, T]) getOrInsert(key K, init func() T) (*Ref[T], bool) {
	if ref, ok := m.get(key); ok {
		return ref, false
	}

	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.refs[key]; ok {
		return ref, false
	}
	ref := &Ref[T]{val: init()}
	s.refs[key] = ref
	return ref, true
}

func (m *shardedMap[K, T]) snapshot() []T {
	var out []T
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		refs := make([]*Ref[T], 0, len(s.refs))
		for _, ref := range s.refs {
			refs = append(refs, ref)
		}
		s.mu.RUnlock()

		for _, ref := range refs {
			out = append(out, ref.Snapshot())
		}
	}
	return out
}

func (m *shardedMap[K, T]) len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.refs)
		s.mu.RUnlock()
	}
	return n
}

// AccountStore holds one Account per client.
type AccountStore struct {
	m *shardedMap[event.ClientID, Account]
}

func NewAccountStore() *AccountStore {
	return &AccountStore{m: newShardedMap[event.ClientID, Account]()}
}

// GetOrCreate returns the client's account, creating a zeroed unlocked one
// on first access.
func (s *AccountStore) GetOrCreate(client event.ClientID) *Ref[Account] {
	ref, _ := s.m.getOrInsert(client, func() Account { return NewAccount(client) })
	return ref
}

// Get returns the client's account handle without creating one.
func (s *AccountStore) Get(client event.ClientID) (*Ref[Account], bool) {
	return s.m.get(client)
}

// Peek returns a copy of the client's account without creating one.
func (s *AccountStore) Peek(client event.ClientID) (Account, bool) {
	ref, ok := s.m.get(client)
	if !ok {
		return Account{}, false
	}
	return ref.Snapshot(), true
}

// Snapshot returns copies of every account ordered by client id.
func (s *AccountStore) Snapshot() []Account {
	accounts := s.m.snapshot()
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Client < accounts[j].Client
	})
	return accounts
}

// Len returns the number of accounts.
func (s *AccountStore) Len() int {
	return s.m.len()
}

// TransactionStore holds one TransactionRecord per transaction id.
type TransactionStore struct {
	m *shardedMap[event.TxID, TransactionRecord]
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{m: newShardedMap[event.TxID, TransactionRecord]()}
}

// InsertIfAbsent stores a new undisputed record for tx. It returns false and
// leaves the existing record untouched when tx is already known.
func (s *TransactionStore) InsertIfAbsent(tx event.TxID, client event.ClientID, amount decimal.Decimal) bool {
	_, inserted := s.m.getOrInsert(tx, func() TransactionRecord {
		return TransactionRecord{Client: client, Amount: amount}
	})
	return inserted
}

// Get returns the handle for tx, if any.
func (s *TransactionStore) Get(tx event.TxID) (*Ref[TransactionRecord], bool) {
	return s.m.get(tx)
}

// Peek returns a copy of the record for tx, if any.
func (s *TransactionStore) Peek(tx event.TxID) (TransactionRecord, bool) {
	ref, ok := s.m.get(tx)
	if !ok {
		return TransactionRecord{}, false
	}
	return ref.Snapshot(), true
}

// Len returns the number of records.
func (s *TransactionStore) Len() int {
	return s.m.len()
}

// Store bundles the two independently keyed maps the engine works against.
type Store struct {
	Accounts     *AccountStore
	Transactions *TransactionStore
}

func NewStore() *Store {
	return &Store{
		Accounts:     NewAccountStore(),
		Transactions: NewTransactionStore(),
	}
}
