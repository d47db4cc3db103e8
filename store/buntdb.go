package store

import (
	"context"
	"time"

	"github.com/tidwall/buntdb"
)

// BuntStore is an ExpiringStore on top of buntdb. With path ":memory:" it is
// the single-process store used in development and tests.
type BuntStore struct {
	db *buntdb.DB
}

// NewBuntStore opens (or creates) the buntdb file at path.
func NewBuntStore(path string) (*BuntStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

// NewMemoryStore returns an in-memory BuntStore.
func NewMemoryStore() (*BuntStore, error) {
	return NewBuntStore(":memory:")
}

func expiring(ttl time.Duration) *buntdb.SetOptions {
	return &buntdb.SetOptions{Expires: true, TTL: clampTTL(ttl)}
}

func notFound(err error) error {
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (s *BuntStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, expiring(ttl))
		return err
	})
}

func (s *BuntStore) Get(_ context.Context, key string) (string, error) {
	var v string
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		v, err = tx.Get(key)
		return err
	})
	return v, notFound(err)
}

func (s *BuntStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *BuntStore) Del(_ context.Context, key string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

func (s *BuntStore) Take(_ context.Context, key string) (string, error) {
	var v string
	err := s.db.Update(func(tx *buntdb.Tx) error {
		var err error
		v, err = tx.Get(key)
		if err != nil {
			return err
		}
		_, err = tx.Delete(key)
		return err
	})
	return v, notFound(err)
}

func (s *BuntStore) CompareAndSwap(_ context.Context, key, old, next string, ttl time.Duration) (bool, error) {
	var swapped bool
	err := s.db.Update(func(tx *buntdb.Tx) error {
		cur, err := tx.Get(key)
		if err != nil {
			return err
		}
		if cur != old {
			return nil
		}
		if _, _, err := tx.Set(key, next, expiring(ttl)); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, notFound(err)
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}
