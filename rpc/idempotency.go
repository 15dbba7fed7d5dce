package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"
)

// IdempotencyHeader names the request header carrying a client-chosen key.
const IdempotencyHeader = "Idempotency-Key"

var bucketIdempotency = []byte("idempotency")

// ErrIdempotencyConflict reports a key reused with a different request.
var ErrIdempotencyConflict = errors.New("rpc: idempotency key reused with different params")

// IdempotencyRecord caches the result of a committed invocation.
type IdempotencyRecord struct {
	Digest    string          `json:"digest"`
	Result    json.RawMessage `json:"result"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// IdempotencyStore persists invocation results so retried submissions are
// answered from cache instead of failing on a consumed nonce.
type IdempotencyStore struct {
	db *bolt.DB
}

// OpenIdempotencyStore opens or creates the BoltDB file at path.
func OpenIdempotencyStore(path string, options *bolt.Options) (*IdempotencyStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &IdempotencyStore{db: db}, nil
}

// Close releases the underlying Bolt handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached record for key when it has not expired. Expired
// records are removed.
func (s *IdempotencyStore) Get(key string, now time.Time) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if now.After(record.ExpiresAt) {
			record = IdempotencyRecord{}
			return bucket.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return record, found, nil
}

// Put stores record under key.
func (s *IdempotencyStore) Put(key string, record IdempotencyRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), payload)
	})
}

// Prune drops every record that expired before now and reports how many
// were removed.
func (s *IdempotencyStore) Prune(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var record IdempotencyRecord
			if err := json.Unmarshal(v, &record); err != nil || now.After(record.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// idempotencyKey scopes a client key to the caller and method.
// idempotencyKey scopes a client key by the bearer subject and the signing
// account, so separate clients never share a key space.
func idempotencyKey(subject, signer, method, key string) string {
	return subject + "|" + signer + "|" + method + "|" + key
}

func paramsDigest(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
