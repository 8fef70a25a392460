package rollback

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdKey is the key used when none is configured.
const DefaultEtcdKey = "/groupsync/rollback"

// EtcdStore keeps the record under a single etcd key. A Put replaces the
// value atomically.
type EtcdStore struct {
	kv  clientv3.KV
	key string
}

// NewEtcdStore returns an EtcdStore using key, or DefaultEtcdKey if empty.
func NewEtcdStore(kv clientv3.KV, key string) *EtcdStore {
	if key == "" {
		key = DefaultEtcdKey
	}
	return &EtcdStore{kv: kv, key: key}
}

// Load implements Store.
func (s *EtcdStore) Load(ctx context.Context) (*Record, error) {
	resp, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return Decode(resp.Kvs[0].Value)
}

// Save implements Store.
func (s *EtcdStore) Save(ctx context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("etcd put %s: %w", s.key, err)
	}
	return nil
}

// Clear implements Store.
func (s *EtcdStore) Clear(ctx context.Context) error {
	if _, err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("etcd delete %s: %w", s.key, err)
	}
	return nil
}
