// Copyright 2025 Certen Protocol
//
// KV Adapter for CometBFT Database Integration
// Wraps CometBFT's dbm.DB interface for the coordinator's persisted state

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KVAdapter wraps a CometBFT dbm.DB and exposes the Get/Set shape pkg/statesync's
// KV interface expects, so tracked-order state persists through CometBFT's
// on-disk storage directly.
type KVAdapter struct {
	db dbm.DB
}

// NewKVAdapter creates a new KVAdapter for the given underlying DB.
func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// Get implements statesync.KV's Get.
func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}

	// CometBFT DB returns (val, error)
	if v, err := a.db.Get(key); err != nil {
		return nil, err
	} else {
		// v may be nil if key not found – that's fine, callers treat nil as "not present".
		return v, nil
	}
}

// Set implements statesync.KV's Set.
func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}

	// Use SetSync for durable writes at commit time
	if err := a.db.SetSync(key, value); err != nil {
		return err
	}
	return nil
}

// IteratePrefix implements statesync.KV's IteratePrefix, calling fn for
// every key/value pair whose key starts with prefix, in key order.
func (a *KVAdapter) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	if a.db == nil {
		return nil
	}

	it, err := a.db.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Error()
}

// prefixUpperBound returns the smallest key greater than every key that
// starts with prefix, for use as an Iterator's exclusive end bound. A nil
// result (prefix is all 0xff, or empty) means "no upper bound".
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}