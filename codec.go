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
	"encoding/json"
	"fmt"
)

// Set encodes value as JSON and stores it under key, outside any
// transaction. Encryption applies as with Write.
func Set[V any](s *Storage, key string, value V) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.Write(key, data)
}

// SetTx encodes value as JSON and buffers the write in the given
// transaction.
func SetTx[V any](s *Storage, key string, value V, id TxnID) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.WriteTx(key, data, id)
}

// Get reads the value stored under key and decodes it into V. Absent
// keys report ErrKeyNotFound; values that do not decode into V report
// ErrCodec.
func Get[V any](s *Storage, key string) (V, error) {
	var value V
	data, err := s.Read(key)
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("%w: decode %q: %w", ErrCodec, key, err)
	}
	return value, nil
}

// Update applies a field name to new value mapping onto the decoded
// existing value under key, stores the merged value and returns it.
// Fails with ErrKeyNotFound when the key is absent and ErrCodec when
// the stored bytes or the merged result do not decode into V. Field
// names follow the JSON encoding of V. Fields unknown to V are
// dropped by the merge.
func Update[V any](s *Storage, key string, fields map[string]any) (V, error) {
	merged, err := mergeFields[V](s, key, fields)
	var value V
	if err != nil {
		return value, err
	}
	if err := Set(s, key, merged); err != nil {
		return value, err
	}
	return merged, nil
}

// UpdateTx is Update with the write buffered in the given transaction.
// The merge reads the currently committed value; pending writes of the
// same transaction are not observed.
func UpdateTx[V any](s *Storage, key string, fields map[string]any, id TxnID) (V, error) {
	merged, err := mergeFields[V](s, key, fields)
	var value V
	if err != nil {
		return value, err
	}
	if err := SetTx(s, key, merged, id); err != nil {
		return value, err
	}
	return merged, nil
}

func mergeFields[V any](s *Storage, key string, fields map[string]any) (V, error) {
	var value V

	data, err := s.Read(key)
	if err != nil {
		return value, err
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return value, fmt.Errorf("%w: decode %q: %w", ErrCodec, key, err)
	}
	for name, field := range fields {
		obj[name] = field
	}

	mergedData, err := json.Marshal(obj)
	if err != nil {
		return value, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	if err := json.Unmarshal(mergedData, &value); err != nil {
		return value, fmt.Errorf("%w: merged value for %q: %w", ErrCodec, key, err)
	}
	return value, nil
}

func encode[V any](value V) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return data, nil
}
