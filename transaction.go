// Copyright 2026 The sealkv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sealkv

import (
	"fmt"

	"github.com/sealkv/sealkv/engine"
)

// TxnID identifies one transaction of a Storage instance. Ids are
// strictly increasing for the lifetime of the instance and never
// reused, including after rollback.
type TxnID uint64

type txnStatus int

const (
	txnActive txnStatus = iota
	txnCommitted
	txnRolledBack
)

// transaction buffers pending operations until commit or rollback.
// Later operations on the same key shadow earlier ones, so the buffer
// is a key to operation map plus the first-touch order of the keys.
type transaction struct {
	id     TxnID
	status txnStatus
	order  []string
	ops    map[string]pendingOp
}

type pendingOp struct {
	value  []byte
	delete bool
}

func (t *transaction) stage(key string, op pendingOp) {
	if _, seen := t.ops[key]; !seen {
		t.order = append(t.order, key)
	}
	t.ops[key] = op
}

// Begin registers a new active transaction with an empty pending
// sequence and returns its id. Begin always succeeds.
func (s *Storage) Begin() TxnID {
	s.lastTxn++
	id := s.lastTxn
	s.txns[id] = &transaction{
		id:  id,
		ops: make(map[string]pendingOp),
	}
	return id
}

// WriteTx buffers a write of value under key in the given transaction.
// The value is encrypted at staging time when encryption is configured.
// Nothing reaches the engine until Commit.
func (s *Storage) WriteTx(key string, value []byte, id TxnID) error {
	if engine.IsMetaKey(key) {
		return ErrReservedKey
	}
	t, err := s.activeTxn(id)
	if err != nil {
		return err
	}

	data := value
	if s.enc != nil {
		data, err = s.enc.Encrypt(value)
		if err != nil {
			return err
		}
	}

	t.stage(key, pendingOp{value: data})
	return nil
}

// DeleteTx buffers a removal of key in the given transaction.
func (s *Storage) DeleteTx(key string, id TxnID) error {
	if engine.IsMetaKey(key) {
		return ErrReservedKey
	}
	t, err := s.activeTxn(id)
	if err != nil {
		return err
	}
	t.stage(key, pendingOp{delete: true})
	return nil
}

// Commit applies the transaction's pending operations as one atomic
// engine batch. On engine failure the transaction stays active so the
// caller may retry or roll back.
func (s *Storage) Commit(id TxnID) error {
	t, err := s.activeTxn(id)
	if err != nil {
		return err
	}

	ops := make([]engine.Op, 0, len(t.order))
	for _, key := range t.order {
		op := t.ops[key]
		ops = append(ops, engine.Op{Key: key, Value: op.value, Delete: op.delete})
	}

	if err := s.eng.ApplyBatch(ops); err != nil {
		return fmt.Errorf("commit transaction %d: %w", id, err)
	}

	t.status = txnCommitted
	t.order = nil
	t.ops = nil
	s.logger.Debug("transaction committed", "txn", id, "ops", len(ops))
	return nil
}

// Rollback discards the transaction's pending operations without
// touching the engine.
func (s *Storage) Rollback(id TxnID) error {
	t, err := s.activeTxn(id)
	if err != nil {
		return err
	}
	t.status = txnRolledBack
	t.order = nil
	t.ops = nil
	s.logger.Debug("transaction rolled back", "txn", id)
	return nil
}

// activeTxn resolves id to an active transaction. Finished ids report
// ErrTransactionNotActive, never-issued ids ErrTransactionNotFound.
func (s *Storage) activeTxn(id TxnID) (*transaction, error) {
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}
	if t.status != txnActive {
		return nil, fmt.Errorf("%w: %d", ErrTransactionNotActive, id)
	}
	return t, nil
}
