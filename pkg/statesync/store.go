package statesync

import (
	"encoding/json"
	"fmt"
)

// KV is the ordered key-value store StateSync persists through - the same
// shape as pkg/kvdb.KVAdapter (Get/Set/IteratePrefix), satisfied structurally
// so this package never imports the cometbft-db wiring directly.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
}

const trackKeyPrefix = "track:"

func trackKey(orderID string) []byte {
	return []byte(trackKeyPrefix + orderID)
}

func saveTrackedOrder(kv KV, t *TrackedOrder) error {
	if kv == nil {
		return nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tracked order: %w", err)
	}
	if err := kv.Set(trackKey(t.OrderID), raw); err != nil {
		return fmt.Errorf("persist tracked order %s: %w", t.OrderID, err)
	}
	return nil
}

func loadTrackedOrder(kv KV, orderID string) (*TrackedOrder, error) {
	if kv == nil {
		return nil, nil
	}
	raw, err := kv.Get(trackKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("load tracked order %s: %w", orderID, err)
	}
	if raw == nil {
		return nil, nil
	}
	var t TrackedOrder
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshal tracked order %s: %w", orderID, err)
	}
	return &t, nil
}

// loadAllTrackedOrders scans every persisted tracked order, for restoring
// in-memory state after a process restart.
func loadAllTrackedOrders(kv KV) (map[string]*TrackedOrder, error) {
	out := make(map[string]*TrackedOrder)
	if kv == nil {
		return out, nil
	}
	err := kv.IteratePrefix([]byte(trackKeyPrefix), func(key, value []byte) error {
		var t TrackedOrder
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("unmarshal tracked order at key %q: %w", key, err)
		}
		out[t.OrderID] = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan tracked orders: %w", err)
	}
	return out, nil
}
