package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"fundchain/core/events"
	"fundchain/services/fundd/oracle"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestDialectorSelection(t *testing.T) {
	d, err := Dialector("postgres://fund:pw@localhost/fund")
	require.NoError(t, err)
	require.Equal(t, "postgres", d.Name())

	d, err = Dialector("file:journal.sqlite")
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())

	_, err = Dialector("  ")
	require.Error(t, err)
}

func TestAppendAndQueryEvents(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx,
		&events.Record{Type: "fund.poked", Attributes: map[string]string{"fund": "fund1a"}},
		&events.Record{Type: "fund.auction.bid", Attributes: map[string]string{"fund": "fund1a", "sell_amount": "100"}},
		&events.Record{Type: "fund.poked", Attributes: map[string]string{"fund": "fund1b"}},
	))
	j.Emit(&events.Record{Type: "fund.poked", Attributes: map[string]string{"fund": "fund1a"}})

	all, err := j.Events(ctx, Query{Fund: "fund1a"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []uint64{1, 2, 4}, []uint64{all[0].Seq, all[1].Seq, all[2].Seq})

	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(all[1].Attributes), &attrs))
	require.Equal(t, "100", attrs["sell_amount"])

	bids, err := j.Events(ctx, Query{Type: "fund.auction.bid"})
	require.NoError(t, err)
	require.Len(t, bids, 1)

	tail, err := j.Events(ctx, Query{AfterSeq: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, uint64(3), tail[0].Seq)
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.Append(context.Background(), &events.Record{Type: "fund.poked"}))

	again, err := New(j.db, nil)
	require.NoError(t, err)
	require.NoError(t, again.Append(context.Background(), &events.Record{Type: "fund.poked"}))

	rows, err := again.Events(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(2), rows[1].Seq)
}

func TestSnapshots(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	pair := oracle.Pair{Sell: common.HexToAddress("0xa1"), Buy: common.HexToAddress("0xb2")}

	_, err := j.LatestSnapshot(ctx, pair)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Unix(1_700_000_000, 0)
	require.NoError(t, j.RecordSnapshot(ctx, oracle.Snapshot{Pair: pair, Median: uint256.NewInt(5), Feeders: []string{"a"}, ObservedAt: base}))
	require.NoError(t, j.RecordSnapshot(ctx, oracle.Snapshot{Pair: pair, Median: uint256.NewInt(7), Feeders: []string{"a", "b"}, ObservedAt: base.Add(time.Minute)}))

	latest, err := j.LatestSnapshot(ctx, pair)
	require.NoError(t, err)
	require.Equal(t, "7", latest.Median)
	require.Equal(t, "a,b", latest.Feeders)
}

func TestIdempotencyKeys(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.LookupResponse(ctx, "alice", "k1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, j.SaveResponse(ctx, IdempotencyKey{Key: "k1", Caller: "alice", Status: 200, Response: `{"ok":true}`}))
	require.NoError(t, j.SaveResponse(ctx, IdempotencyKey{Key: "k1", Caller: "alice", Status: 500, Response: "late"}))

	row, err := j.LookupResponse(ctx, "alice", "k1")
	require.NoError(t, err)
	require.Equal(t, 200, row.Status)
	require.NotEmpty(t, row.RequestID)

	_, err = j.LookupResponse(ctx, "bob", "k1")
	require.ErrorIs(t, err, ErrNotFound)
}
