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


// Package engine defines the byte-level contract over the persistent KV
// engine. Implementations live in subpackages (engine/badger).
package engine

import "strings"

// MetaPrefix is the reserved key namespace for storage-internal records
// (KDF salt, sealed DEK). Keys under this prefix are excluded from scans,
// Keys listings and emptiness checks.
const MetaPrefix = "!sealkv!"

// MetaKey builds a reserved metadata key from a short name.
func MetaKey(name string) string {
	return MetaPrefix + name
}

// IsMetaKey reports whether key lives in the reserved namespace.
func IsMetaKey(key string) bool {
	return strings.HasPrefix(key, MetaPrefix)
}

// Op is a single entry of an atomic batch. Value is ignored when Delete
// is set.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Entry is a key/value pair returned by prefix scans.
type Entry struct {
	Key   string
	Value []byte
}

// Engine is the contract the storage layer requires from a persistent KV
// engine. All mutating calls are durable before returning successfully.
// Scans return entries in lexicographic byte order of the keys and never
// include reserved metadata keys.
type Engine interface {
	// Get returns the value stored at key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Put stores value at key, overwriting any previous value.
	Put(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Scan visits every non-meta entry whose key starts with prefix,
	// in key order, until fn returns an error. An empty prefix scans
	// the whole keyspace. The scan observes a stable snapshot.
	Scan(prefix string, fn func(Entry) error) error

	// ScanKeys is Scan without reading the values.
	ScanKeys(prefix string, fn func(key string) error) error

	// ApplyBatch applies ops atomically: either every op becomes
	// visible or none does, even across process interruption.
	ApplyBatch(ops []Op) error

	// IsEmpty reports whether the store holds no non-meta keys.
	IsEmpty() (bool, error)

	// Close releases the underlying engine. The Engine is unusable
	// afterwards.
	Close() error
}
