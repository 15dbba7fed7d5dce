// Package eventlog persists committed ledger notifications in an append-only
// LevelDB log. Each entry is chained to its predecessor with a BLAKE3 digest
// so consumers can detect gaps or tampering. The head record also carries the
// last ledger height logged, events or not, so the host can tell when a
// committed invocation never reached the log.
package eventlog

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"lukechampine.com/blake3"

	"chowfast/core/types"
)

var (
	entryPrefix = []byte("e/")
	orderPrefix = []byte("o/")
	headKey     = []byte("meta/head")

	// ErrCorrupt is returned by Verify when the digest chain is broken.
	ErrCorrupt = errors.New("eventlog: digest chain broken")
	// ErrHeightRegression is returned when Append is handed a height below
	// the last one logged.
	ErrHeightRegression = errors.New("eventlog: height regression")
)

const headRecordLen = 8 + 32 + 8

// DefaultPageSize bounds List and ByOrder when the caller passes no limit.
const DefaultPageSize = 100

// Entry is a single persisted notification.
type Entry struct {
	Seq          uint64      `json:"seq"`
	Height       uint64      `json:"height"`
	Timestamp    uint64      `json:"timestamp"`
	InvocationID string      `json:"invocationId"`
	Event        types.Event `json:"event"`
	Prev         string      `json:"prev"`
	Digest       string      `json:"digest"`
}

// Log is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	db     *leveldb.DB
	seq    uint64
	head   [32]byte
	height uint64
	// logged is false until the first Append, so genesis at height zero is
	// distinguishable from an empty log.
	logged bool
}

// Open opens or creates a log at path.
func Open(path string) (*Log, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return newLog(db)
}

// OpenMemory returns a log that lives only in memory.
func OpenMemory() (*Log, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newLog(db)
}

func newLog(db *leveldb.DB) (*Log, error) {
	l := &Log{db: db}
	raw, err := db.Get(headKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return l, nil
	case err != nil:
		_ = db.Close()
		return nil, err
	}
	if len(raw) != headRecordLen {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: malformed head record")
	}
	l.seq = binary.BigEndian.Uint64(raw[:8])
	copy(l.head[:], raw[8:40])
	l.height = binary.BigEndian.Uint64(raw[40:])
	l.logged = true
	return l, nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Head returns the last sequence number and digest.
func (l *Log) Head() (uint64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq, hex.EncodeToString(l.head[:])
}

// Height returns the last ledger height handed to Append. ok is false when
// nothing has been logged yet.
func (l *Log) Height() (height uint64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height, l.logged
}

func headRecord(seq uint64, head [32]byte, height uint64) []byte {
	out := make([]byte, 0, headRecordLen)
	out = append(out, seqBytes(seq)...)
	out = append(out, head[:]...)
	return append(out, seqBytes(height)...)
}

func seqBytes(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

func entryKey(seq uint64) []byte {
	return append(append([]byte(nil), entryPrefix...), seqBytes(seq)...)
}

func orderIndexPrefix(orderID string) []byte {
	key := append([]byte(nil), orderPrefix...)
	key = append(key, orderID...)
	return append(key, '/')
}

func digest(prev [32]byte, e Entry) ([32]byte, error) {
	e.Digest = ""
	encoded, err := json.Marshal(e)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(append(prev[:], encoded...)), nil
}

// Append writes the events of one committed invocation atomically. It must be
// called for every committed height, including those without events.
func (l *Log) Append(height, timestamp uint64, invocationID string, evts []types.Event) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logged && height < l.height {
		return nil, fmt.Errorf("%w: %d after %d", ErrHeightRegression, height, l.height)
	}

	batch := new(leveldb.Batch)
	seq, head := l.seq, l.head
	out := make([]Entry, 0, len(evts))
	for _, evt := range evts {
		seq++
		entry := Entry{
			Seq:          seq,
			Height:       height,
			Timestamp:    timestamp,
			InvocationID: invocationID,
			Event:        *evt.Clone(),
			Prev:         hex.EncodeToString(head[:]),
		}
		sum, err := digest(head, entry)
		if err != nil {
			return nil, err
		}
		entry.Digest = hex.EncodeToString(sum[:])
		encoded, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		batch.Put(entryKey(seq), encoded)
		if orderID := evt.Attributes["orderId"]; orderID != "" {
			batch.Put(append(orderIndexPrefix(orderID), seqBytes(seq)...), nil)
		}
		head = sum
		out = append(out, entry)
	}
	batch.Put(headKey, headRecord(seq, head, height))
	if err := l.db.Write(batch, nil); err != nil {
		return nil, err
	}
	l.seq, l.head, l.height, l.logged = seq, head, height, true
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (l *Log) get(seq uint64) (Entry, error) {
	raw, err := l.db.Get(entryKey(seq), nil)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List returns up to limit entries starting at sequence from (inclusive).
func (l *Log) List(from uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if from == 0 {
		from = 1
	}
	iter := l.db.NewIterator(&util.Range{Start: entryKey(from), Limit: util.BytesPrefix(entryPrefix).Limit}, nil)
	defer iter.Release()
	out := make([]Entry, 0)
	for iter.Next() && len(out) < limit {
		var entry Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, iter.Error()
}

// ByOrder returns up to limit entries that reference the order, oldest first.
func (l *Log) ByOrder(orderID uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	prefix := orderIndexPrefix(strconv.FormatUint(orderID, 10))
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	out := make([]Entry, 0)
	for iter.Next() && len(out) < limit {
		key := iter.Key()
		if len(key) != len(prefix)+8 {
			continue
		}
		entry, err := l.get(binary.BigEndian.Uint64(key[len(prefix):]))
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, iter.Error()
}

// Verify walks the whole log, recomputes the digest chain and checks entry
// heights never decrease or pass the logged height.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(util.BytesPrefix(entryPrefix), nil)
	defer iter.Release()
	var prev [32]byte
	var expected uint64 = 1
	var lastHeight uint64
	for iter.Next() {
		var entry Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return err
		}
		if entry.Seq != expected {
			return fmt.Errorf("%w: expected seq %d, found %d", ErrCorrupt, expected, entry.Seq)
		}
		if entry.Prev != hex.EncodeToString(prev[:]) {
			return fmt.Errorf("%w: seq %d prev mismatch", ErrCorrupt, entry.Seq)
		}
		sum, err := digest(prev, entry)
		if err != nil {
			return err
		}
		if hex.EncodeToString(sum[:]) != entry.Digest {
			return fmt.Errorf("%w: seq %d digest mismatch", ErrCorrupt, entry.Seq)
		}
		if entry.Height < lastHeight || entry.Height > l.height {
			return fmt.Errorf("%w: seq %d height %d out of order", ErrCorrupt, entry.Seq, entry.Height)
		}
		lastHeight = entry.Height
		prev = sum
		expected++
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if expected-1 != l.seq || prev != l.head {
		return fmt.Errorf("%w: head does not match last entry", ErrCorrupt)
	}
	return nil
}
