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
	"errors"

	"github.com/sealkv/sealkv/engine"
)

var (
	// ErrKeyNotFound indicates a read of an absent key.
	ErrKeyNotFound = engine.ErrKeyNotFound

	// ErrTransactionNotFound indicates an operation on a transaction id
	// that was never issued by this Storage.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionNotActive indicates an operation on a transaction
	// that has already been committed or rolled back.
	ErrTransactionNotActive = errors.New("transaction not active")

	// ErrWrongPassword indicates that a sealed DEK could not be opened
	// with the supplied password.
	ErrWrongPassword = errors.New("wrong password")

	// ErrNoPasswordSet indicates a password operation on a store that
	// has encryption disabled.
	ErrNoPasswordSet = errors.New("no password set for the storage")

	// ErrWeakPassword indicates that a password does not meet the
	// configured complexity policy.
	ErrWeakPassword = errors.New("password does not meet complexity requirements")

	// ErrReservedKey indicates an attempt to write a key under the
	// reserved internal namespace.
	ErrReservedKey = errors.New("key is reserved for internal use")

	// ErrCodec indicates a typed value failed to encode or decode.
	ErrCodec = errors.New("value codec failure")

	// ErrTruncatedBackup indicates a backup stream that ended before
	// its integrity trailer.
	ErrTruncatedBackup = errors.New("truncated backup stream")

	// ErrCorruptBackup indicates a backup stream whose integrity
	// digest does not match its contents.
	ErrCorruptBackup = errors.New("corrupt backup stream")
)
