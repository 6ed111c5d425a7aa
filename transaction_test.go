package sealkv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkv/sealkv/engine"
)

// flakyEngine rejects batches while failBatch is set and otherwise
// delegates to the wrapped engine.
type flakyEngine struct {
	engine.Engine
	failBatch bool
}

var errBatchRejected = errors.New("batch rejected")

func (f *flakyEngine) ApplyBatch(ops []engine.Op) error {
	if f.failBatch {
		return errBatchRejected
	}
	return f.Engine.ApplyBatch(ops)
}

func TestTransaction_Commit(t *testing.T) {
	store := newTestStorage(t, "")
	id := store.Begin()
	require.NoError(t, store.WriteTx("test1", []byte("test_value1"), id))
	require.NoError(t, store.WriteTx("test2", []byte("test_value2"), id))

	// Staged writes are invisible before commit.
	_, err := store.Read("test1")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Commit(id))

	value, err := store.Read("test1")
	require.NoError(t, err)
	assert.Equal(t, []byte("test_value1"), value)
	value, err = store.Read("test2")
	require.NoError(t, err)
	assert.Equal(t, []byte("test_value2"), value)
	_, err = store.Read("test3")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTransaction_CommitEncrypted(t *testing.T) {
	store := newTestStorage(t, "password")
	id := store.Begin()
	require.NoError(t, store.WriteTx("k", []byte("secret"), id))
	require.NoError(t, store.Commit(id))

	value, err := store.Read("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), value)

	raw, err := store.eng.Get("k")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("secret"), raw)
}

func TestTransaction_Rollback(t *testing.T) {
	store := newTestStorage(t, "")
	id := store.Begin()
	require.NoError(t, store.WriteTx("test1", []byte("test_value1"), id))
	require.NoError(t, store.WriteTx("test2", []byte("test_value2"), id))
	require.NoError(t, store.Rollback(id))

	_, err := store.Read("test1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = store.Read("test2")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTransaction_Delete(t *testing.T) {
	store := newTestStorage(t, "")
	require.NoError(t, store.Write("test1", []byte("v")))

	id := store.Begin()
	require.NoError(t, store.DeleteTx("test1", id))

	// Still visible until commit.
	value, err := store.Read("test1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, store.Commit(id))
	_, err = store.Read("test1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTransaction_LastWriteWinsWithinTransaction(t *testing.T) {
	store := newTestStorage(t, "")
	id := store.Begin()
	require.NoError(t, store.WriteTx("k", []byte("first"), id))
	require.NoError(t, store.WriteTx("k", []byte("second"), id))
	require.NoError(t, store.DeleteTx("k", id))
	require.NoError(t, store.WriteTx("k", []byte("final"), id))
	require.NoError(t, store.Commit(id))

	value, err := store.Read("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), value)
}

func TestTransaction_IndependentTransactions(t *testing.T) {
	store := newTestStorage(t, "")
	first := store.Begin()
	second := store.Begin()
	require.NoError(t, store.WriteTx("a", []byte("from first"), first))
	require.NoError(t, store.WriteTx("b", []byte("from second"), second))

	require.NoError(t, store.Commit(first))

	// The second transaction's staged write is still invisible.
	value, err := store.Read("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("from first"), value)
	_, err = store.Read("b")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Rollback(second))
	_, err = store.Read("b")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTransaction_OrderingAgainstDirectWrites(t *testing.T) {
	store := newTestStorage(t, "")

	// Direct write first, transactional commit second: the
	// transaction wins.
	id := store.Begin()
	require.NoError(t, store.WriteTx("k", []byte("from txn"), id))
	require.NoError(t, store.Write("k", []byte("direct")))
	require.NoError(t, store.Commit(id))

	value, err := store.Read("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("from txn"), value)

	// Reversed order reverses the winner.
	id = store.Begin()
	require.NoError(t, store.WriteTx("k", []byte("from txn 2"), id))
	require.NoError(t, store.Commit(id))
	require.NoError(t, store.Write("k", []byte("direct 2")))

	value, err = store.Read("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("direct 2"), value)
}

func TestTransaction_IDsMonotonic(t *testing.T) {
	store := newTestStorage(t, "")

	var last TxnID
	for i := 0; i < 10; i++ {
		id := store.Begin()
		assert.Greater(t, id, last)
		last = id

		if i%2 == 0 {
			require.NoError(t, store.WriteTx("k", []byte("v"), id))
			require.NoError(t, store.Commit(id))
		} else {
			require.NoError(t, store.Rollback(id))
		}
	}
}

func TestTransaction_UnknownID(t *testing.T) {
	store := newTestStorage(t, "")

	err := store.WriteTx("k", []byte("v"), TxnID(42))
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.ErrorIs(t, store.DeleteTx("k", TxnID(42)), ErrTransactionNotFound)
	assert.ErrorIs(t, store.Commit(TxnID(42)), ErrTransactionNotFound)
	assert.ErrorIs(t, store.Rollback(TxnID(42)), ErrTransactionNotFound)
}

func TestTransaction_FinishedIDReuse(t *testing.T) {
	store := newTestStorage(t, "")

	committed := store.Begin()
	require.NoError(t, store.WriteTx("k", []byte("v"), committed))
	require.NoError(t, store.Commit(committed))

	rolledBack := store.Begin()
	require.NoError(t, store.Rollback(rolledBack))

	for _, id := range []TxnID{committed, rolledBack} {
		assert.ErrorIs(t, store.WriteTx("k", []byte("v"), id), ErrTransactionNotActive)
		assert.ErrorIs(t, store.DeleteTx("k", id), ErrTransactionNotActive)
		assert.ErrorIs(t, store.Commit(id), ErrTransactionNotActive)
		assert.ErrorIs(t, store.Rollback(id), ErrTransactionNotActive)
	}
}

func TestTransaction_EmptyCommit(t *testing.T) {
	store := newTestStorage(t, "")
	id := store.Begin()
	require.NoError(t, store.Commit(id))
}

func TestTransaction_CommitEngineFailureStaysActive(t *testing.T) {
	store := newTestStorage(t, "")
	flaky := &flakyEngine{Engine: store.eng, failBatch: true}
	store.eng = flaky

	id := store.Begin()
	require.NoError(t, store.WriteTx("test1", []byte("test_value1"), id))
	require.ErrorIs(t, store.Commit(id), errBatchRejected)

	// The transaction survived the failure: it still takes writes and
	// a retried commit applies everything.
	require.NoError(t, store.WriteTx("test2", []byte("test_value2"), id))
	flaky.failBatch = false
	require.NoError(t, store.Commit(id))

	value, err := store.Read("test1")
	require.NoError(t, err)
	assert.Equal(t, []byte("test_value1"), value)
	value, err = store.Read("test2")
	require.NoError(t, err)
	assert.Equal(t, []byte("test_value2"), value)
}

func TestTransaction_CommitEngineFailureThenRollback(t *testing.T) {
	store := newTestStorage(t, "")
	flaky := &flakyEngine{Engine: store.eng, failBatch: true}
	store.eng = flaky

	id := store.Begin()
	require.NoError(t, store.WriteTx("k", []byte("v"), id))
	require.ErrorIs(t, store.Commit(id), errBatchRejected)
	require.NoError(t, store.Rollback(id))

	assert.ErrorIs(t, store.Commit(id), ErrTransactionNotActive)
	_, err := store.Read("k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTransaction_ReservedKeyRejected(t *testing.T) {
	store := newTestStorage(t, "")
	id := store.Begin()
	assert.ErrorIs(t, store.WriteTx("!sealkv!dek", []byte("x"), id), ErrReservedKey)
	assert.ErrorIs(t, store.DeleteTx("!sealkv!dek", id), ErrReservedKey)
	require.NoError(t, store.Rollback(id))
}
