package eventlog

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"chowfast/core/types"
)

func orderEvent(kind, orderID string) types.Event {
	return types.Event{Type: kind, Attributes: map[string]string{"orderId": orderID}}
}

func TestAppendListAndIndex(t *testing.T) {
	log, err := OpenMemory()
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Append(1, 100, "inv-1", []types.Event{orderEvent("orders.created", "1"), {Type: "token.transfer", Attributes: map[string]string{"amount": "5"}}})
	require.NoError(t, err)
	_, err = log.Append(2, 110, "inv-2", []types.Event{orderEvent("orders.created", "2")})
	require.NoError(t, err)
	appended, err := log.Append(3, 120, "inv-3", []types.Event{orderEvent("orders.cancelled", "1")})
	require.NoError(t, err)
	require.Len(t, appended, 1)
	require.Equal(t, uint64(4), appended[0].Seq)

	seq, head := log.Head()
	require.Equal(t, uint64(4), seq)
	require.Equal(t, appended[0].Digest, head)

	all, err := log.List(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, entry := range all {
		require.Equal(t, uint64(i+1), entry.Seq)
	}

	page, err := log.List(2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, uint64(2), page[0].Seq)
	require.Equal(t, uint64(3), page[1].Seq)

	byOrder, err := log.ByOrder(1, 0)
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
	require.Equal(t, "orders.created", byOrder[0].Event.Type)
	require.Equal(t, "orders.cancelled", byOrder[1].Event.Type)
	require.Equal(t, "inv-3", byOrder[1].InvocationID)

	none, err := log.ByOrder(9, 0)
	require.NoError(t, err)
	require.Empty(t, none)

	require.NoError(t, log.Verify())
}

func TestAppendWithoutEventsRecordsHeight(t *testing.T) {
	log, err := OpenMemory()
	require.NoError(t, err)
	defer log.Close()

	_, ok := log.Height()
	require.False(t, ok)

	entries, err := log.Append(0, 1, "genesis", nil)
	require.NoError(t, err)
	require.Empty(t, entries)
	height, ok := log.Height()
	require.True(t, ok)
	require.Zero(t, height)

	entries, err = log.Append(3, 5, "inv", nil)
	require.NoError(t, err)
	require.Empty(t, entries)
	seq, _ := log.Head()
	require.Zero(t, seq)
	height, _ = log.Height()
	require.Equal(t, uint64(3), height)
	require.NoError(t, log.Verify())

	_, err = log.Append(2, 6, "late", []types.Event{orderEvent("orders.created", "1")})
	require.ErrorIs(t, err, ErrHeightRegression)
	seq, _ = log.Head()
	require.Zero(t, seq)
}

func TestVerifyRejectsEntryAboveLoggedHeight(t *testing.T) {
	log, err := OpenMemory()
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Append(4, 100, "inv-4", []types.Event{orderEvent("orders.created", "1")})
	require.NoError(t, err)
	entries, err := log.List(1, 1)
	require.NoError(t, err)

	raised := entries[0]
	raised.Height = 9
	sum, err := digest([32]byte{}, raised)
	require.NoError(t, err)
	raised.Digest = hex.EncodeToString(sum[:])
	encoded, err := json.Marshal(raised)
	require.NoError(t, err)
	require.NoError(t, log.db.Put(entryKey(1), encoded, nil))
	require.NoError(t, log.db.Put(headKey, headRecord(1, sum, 4), nil))
	log.head = sum

	require.ErrorIs(t, log.Verify(), ErrCorrupt)
}

func TestVerifyDetectsTampering(t *testing.T) {
	log, err := OpenMemory()
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Append(1, 100, "inv-1", []types.Event{orderEvent("orders.created", "1"), orderEvent("orders.status", "1")})
	require.NoError(t, err)

	entries, err := log.List(1, 1)
	require.NoError(t, err)
	tampered := entries[0]
	tampered.Event.Attributes["orderId"] = "2"
	encoded, err := json.Marshal(tampered)
	require.NoError(t, err)
	require.NoError(t, log.db.Put(entryKey(1), encoded, nil))

	require.ErrorIs(t, log.Verify(), ErrCorrupt)
}

func TestReopenRestoresHead(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	require.NoError(t, err)
	_, err = log.Append(1, 100, "inv-1", []types.Event{orderEvent("orders.created", "1")})
	require.NoError(t, err)
	seq, head := log.Head()
	require.NoError(t, log.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	gotSeq, gotHead := reopened.Head()
	require.Equal(t, seq, gotSeq)
	require.Equal(t, head, gotHead)
	height, ok := reopened.Height()
	require.True(t, ok)
	require.Equal(t, uint64(1), height)

	_, err = reopened.Append(2, 200, "inv-2", []types.Event{orderEvent("orders.status", "1")})
	require.NoError(t, err)
	require.NoError(t, reopened.Verify())
}
