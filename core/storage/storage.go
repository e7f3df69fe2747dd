// Package storage persists TokenState snapshots to a leveldb instance,
// with a key-prefixed on-disk layout for the principal/present ledger.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"yieldcore/core/token"
	"yieldcore/core/types"
)

var (
	keyTotalNonEarningSupply        = []byte("total-non-earning-supply")
	keyPrincipalOfTotalEarningSupply = []byte("principal-of-total-earning-supply")
	keyLatestIndex                  = []byte("latest-index")
	keyLatestRate                   = []byte("latest-rate")
	keyLatestUpdateTimestamp        = []byte("latest-update-timestamp")
	earningAccountPrefix            = []byte("earning-account-")
)

// earningAccountRecord is the JSON-on-disk shape for one EarningAccount.
type earningAccountRecord struct {
	Principal      string `json:"principal"`
	LastClaimIndex string `json:"last_claim_index"`
}

// Snapshot is the full state a Store round-trips: everything TokenState
// needs to resume without replaying history.
type Snapshot struct {
	TotalNonEarningSupply         *uint256.Int
	PrincipalOfTotalEarningSupply *uint256.Int
	LatestIndex                   *uint256.Int
	LatestRate                    uint32
	LatestUpdateTimestamp         uint64
	Earning                       map[types.Address]*token.EarningAccount
}

// SnapshotOf captures t's current persisted-relevant state.
func SnapshotOf(t *token.TokenState) *Snapshot {
	nonEarning, principalTotal := t.RawTotals()
	return &Snapshot{
		TotalNonEarningSupply:         nonEarning,
		PrincipalOfTotalEarningSupply: principalTotal,
		LatestIndex:                   t.LatestIndex(),
		LatestRate:                    t.LatestRate(),
		LatestUpdateTimestamp:         t.LatestUpdateTimestamp(),
		Earning:                       t.RawEarningAccounts(),
	}
}

// Restore rebuilds a TokenState from a snapshot.
func (snap *Snapshot) Restore(registrarID string) *token.TokenState {
	return token.Restore(registrarID, snap.TotalNonEarningSupply, snap.PrincipalOfTotalEarningSupply, snap.LatestIndex, snap.LatestRate, snap.LatestUpdateTimestamp, snap.Earning)
}

// IsEmpty reports whether this snapshot has no recorded state, the
// signal package service uses to tell a first run from a reload.
func (snap *Snapshot) IsEmpty() bool {
	return snap.LatestIndex.IsZero() && snap.TotalNonEarningSupply.IsZero() && snap.PrincipalOfTotalEarningSupply.IsZero() && len(snap.Earning) == 0
}

// Store is a leveldb-backed persistence layer for one TokenState.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the leveldb instance at dataDir.
func Open(dataDir string) (*Store, error) {
	db, err := leveldb.OpenFile(dataDir, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open token state db at %s: %w", dataDir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a full snapshot, overwriting whatever was persisted before.
func (s *Store) Save(snap *Snapshot) error {
	batch := new(leveldb.Batch)

	batch.Put(keyTotalNonEarningSupply, []byte(snap.TotalNonEarningSupply.Dec()))
	batch.Put(keyPrincipalOfTotalEarningSupply, []byte(snap.PrincipalOfTotalEarningSupply.Dec()))
	batch.Put(keyLatestIndex, []byte(snap.LatestIndex.Dec()))
	batch.Put(keyLatestRate, []byte(fmt.Sprintf("%d", snap.LatestRate)))
	batch.Put(keyLatestUpdateTimestamp, []byte(fmt.Sprintf("%d", snap.LatestUpdateTimestamp)))

	// Drop earning accounts from the previous save so addresses that have
	// since stopped earning are not reloaded.
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		key := iter.Key()
		if len(key) > len(earningAccountPrefix) && string(key[:len(earningAccountPrefix)]) == string(earningAccountPrefix) {
			batch.Delete(append([]byte{}, key...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("failed to iterate earning accounts: %w", err)
	}

	for addr, acc := range snap.Earning {
		rec := earningAccountRecord{
			Principal:      acc.Principal.Dec(),
			LastClaimIndex: acc.LastClaimIndex.Dec(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal earning account %s: %w", addr.Hex(), err)
		}
		batch.Put(earningAccountKey(addr), data)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	log.Info("token state snapshot saved", "earners", len(snap.Earning))
	return nil
}

// Load reads back whatever snapshot was last saved. A missing key (first
// run) falls back to its zero value rather than failing.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{
		TotalNonEarningSupply:         uint256.NewInt(0),
		PrincipalOfTotalEarningSupply: uint256.NewInt(0),
		LatestIndex:                   uint256.NewInt(0),
		Earning:                       make(map[types.Address]*token.EarningAccount),
	}

	if v, ok := s.getDecimal(keyTotalNonEarningSupply); ok {
		snap.TotalNonEarningSupply = v
	}
	if v, ok := s.getDecimal(keyPrincipalOfTotalEarningSupply); ok {
		snap.PrincipalOfTotalEarningSupply = v
	}
	if v, ok := s.getDecimal(keyLatestIndex); ok {
		snap.LatestIndex = v
	}
	if data, err := s.db.Get(keyLatestRate, nil); err == nil {
		var rate uint32
		fmt.Sscanf(string(data), "%d", &rate)
		snap.LatestRate = rate
	}
	if data, err := s.db.Get(keyLatestUpdateTimestamp, nil); err == nil {
		var ts uint64
		fmt.Sscanf(string(data), "%d", &ts)
		snap.LatestUpdateTimestamp = ts
	}

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) <= len(earningAccountPrefix) {
			continue
		}
		if string(key[:len(earningAccountPrefix)]) != string(earningAccountPrefix) {
			continue
		}
		addr := types.BytesToAddress(key[len(earningAccountPrefix):])

		var rec earningAccountRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal earning account %s: %w", addr.Hex(), err)
		}
		principal := new(uint256.Int)
		if err := principal.SetFromDecimal(rec.Principal); err != nil {
			return nil, fmt.Errorf("corrupt principal for %s: %w", addr.Hex(), err)
		}
		lastClaim := new(uint256.Int)
		if err := lastClaim.SetFromDecimal(rec.LastClaimIndex); err != nil {
			return nil, fmt.Errorf("corrupt last_claim_index for %s: %w", addr.Hex(), err)
		}
		snap.Earning[addr] = &token.EarningAccount{Principal: principal, LastClaimIndex: lastClaim}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate earning accounts: %w", err)
	}

	return snap, nil
}

func (s *Store) getDecimal(key []byte) (*uint256.Int, bool) {
	data, err := s.db.Get(key, nil)
	if err != nil {
		return nil, false
	}
	v := new(uint256.Int)
	if err := v.SetFromDecimal(string(data)); err != nil {
		return nil, false
	}
	return v, true
}

func earningAccountKey(addr types.Address) []byte {
	return append(append([]byte{}, earningAccountPrefix...), addr.Bytes()...)
}
