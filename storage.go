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


// Package sealkv is an embedded key-value storage layer with
// transparent per-value encryption, buffered transactions with atomic
// commit, and encrypted backups sealed by a per-backup password.
//
// A Storage instance exclusively owns one on-disk store and is not safe
// for concurrent use; callers must confine it to one goroutine or
// serialize access externally.
package sealkv

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealkv/sealkv/crypto"
	"github.com/sealkv/sealkv/engine"
	badgerengine "github.com/sealkv/sealkv/engine/badger"
)

// Reserved metadata record names.
const (
	metaSalt = "salt"
	metaDEK  = "dek"
)

// Entry is a decrypted key/value pair returned by PrefixScan.
type Entry struct {
	Key   string
	Value []byte
}

// Storage composes the persistent engine, the optional cipher and the
// transaction table into the public storage surface.
type Storage struct {
	eng    engine.Engine
	path   string
	enc    *crypto.Encryptor
	policy PasswordPolicy
	logger *slog.Logger

	lastTxn TxnID
	txns    map[TxnID]*transaction
	closed  bool
}

// New initializes a fresh store at cfg.Path, creating the directory if
// needed, and attaches to it.
func New(cfg Config) (*Storage, error) {
	eng, err := badgerengine.New(cfg.Path, cfg.logger())
	if err != nil {
		return nil, err
	}
	return setup(cfg, eng)
}

// Open attaches to an existing store at cfg.Path. It fails when no
// store has been created there.
func Open(cfg Config) (*Storage, error) {
	eng, err := badgerengine.Open(cfg.Path, cfg.logger())
	if err != nil {
		return nil, err
	}
	return setup(cfg, eng)
}

func setup(cfg Config, eng engine.Engine) (*Storage, error) {
	s := &Storage{
		eng:    eng,
		path:   cfg.Path,
		policy: cfg.policy(),
		logger: cfg.logger(),
		txns:   make(map[TxnID]*transaction),
	}

	if cfg.Password != "" {
		if !s.policy.Validate(cfg.Password) {
			eng.Close()
			return nil, ErrWeakPassword
		}
		enc, err := s.loadDEK(cfg.Password)
		if err != nil {
			eng.Close()
			return nil, err
		}
		s.enc = enc
	}

	s.logger.Debug("storage opened", "path", s.path, "encrypted", s.enc != nil)
	return s, nil
}

// loadDEK unseals the store DEK with a key derived from password,
// generating salt and DEK on first use. The derived sealing key never
// leaves this function.
func (s *Storage) loadDEK(password string) (*crypto.Encryptor, error) {
	salt, err := s.eng.Get(engine.MetaKey(metaSalt))
	if errors.Is(err, engine.ErrKeyNotFound) {
		salt, err = crypto.GenerateSalt()
		if err != nil {
			return nil, err
		}
		if err := s.eng.Put(engine.MetaKey(metaSalt), salt); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	kek := crypto.DeriveKey([]byte(password), salt)
	defer crypto.ClearBytes(kek)
	sealer := crypto.NewEncryptor(kek)

	sealed, err := s.eng.Get(engine.MetaKey(metaDEK))
	switch {
	case errors.Is(err, engine.ErrKeyNotFound):
		dek, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		sealed, err := sealer.Encrypt(dek)
		if err != nil {
			return nil, err
		}
		if err := s.eng.Put(engine.MetaKey(metaDEK), sealed); err != nil {
			return nil, err
		}
		return crypto.NewEncryptor(dek), nil
	case err != nil:
		return nil, err
	}

	dek, err := sealer.Decrypt(sealed)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %w", ErrWrongPassword, err)
		}
		return nil, err
	}
	return crypto.NewEncryptor(dek), nil
}

// Close releases the underlying engine and clears key material. The
// Storage is unusable afterwards.
func (s *Storage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.enc != nil {
		s.enc.Destroy()
	}
	if err := s.eng.Close(); err != nil {
		s.logger.Error("error closing storage engine", "err", err)
		return err
	}
	return nil
}

// DeleteFiles removes all on-disk state for a store at path. It must
// not be called while a Storage pointed at the same path is open.
func DeleteFiles(path string) error {
	return badgerengine.Destroy(path)
}

// Write stores value under key immediately, outside any transaction.
// The value is encrypted when encryption is configured.
func (s *Storage) Write(key string, value []byte) error {
	if engine.IsMetaKey(key) {
		return ErrReservedKey
	}
	data := value
	if s.enc != nil {
		var err error
		data, err = s.enc.Encrypt(value)
		if err != nil {
			return err
		}
	}
	return s.eng.Put(key, data)
}

// Read returns the value stored under key, decrypted when encryption
// is configured. Absent keys report ErrKeyNotFound.
func (s *Storage) Read(key string) ([]byte, error) {
	if engine.IsMetaKey(key) {
		return nil, ErrKeyNotFound
	}
	data, err := s.eng.Get(key)
	if err != nil {
		return nil, err
	}
	if s.enc != nil {
		return s.enc.Decrypt(data)
	}
	return data, nil
}

// Delete removes key immediately, outside any transaction. Deleting an
// absent key is not an error.
func (s *Storage) Delete(key string) error {
	if engine.IsMetaKey(key) {
		return ErrReservedKey
	}
	return s.eng.Delete(key)
}

// Has reports whether key exists in the store.
func (s *Storage) Has(key string) (bool, error) {
	if engine.IsMetaKey(key) {
		return false, nil
	}
	_, err := s.eng.Get(key)
	if errors.Is(err, engine.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsEmpty reports whether the store holds no keys.
func (s *Storage) IsEmpty() (bool, error) {
	return s.eng.IsEmpty()
}

// Keys returns every key in the store, in engine key order. Keys are
// always stored in plaintext.
func (s *Storage) Keys() ([]string, error) {
	return s.PrefixKeys("")
}

// PrefixKeys returns all keys starting with prefix, in engine key
// order.
func (s *Storage) PrefixKeys(prefix string) ([]string, error) {
	var keys []string
	err := s.eng.ScanKeys(prefix, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// PrefixScan returns all entries whose key starts with prefix, in
// engine key order, with values decrypted when encryption is
// configured.
func (s *Storage) PrefixScan(prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.eng.Scan(prefix, func(e engine.Entry) error {
		value := e.Value
		if s.enc != nil {
			var err error
			value, err = s.enc.Decrypt(e.Value)
			if err != nil {
				return fmt.Errorf("decrypt %q: %w", e.Key, err)
			}
		}
		entries = append(entries, Entry{Key: e.Key, Value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ChangePassword reseals the store DEK under a key derived from
// newPassword. Stored values are untouched: they stay encrypted under
// the same DEK.
func (s *Storage) ChangePassword(oldPassword, newPassword string) error {
	if s.enc == nil {
		return ErrNoPasswordSet
	}
	if !s.policy.Validate(newPassword) {
		return ErrWeakPassword
	}

	salt, err := s.eng.Get(engine.MetaKey(metaSalt))
	if err != nil {
		return err
	}
	sealed, err := s.eng.Get(engine.MetaKey(metaDEK))
	if err != nil {
		return err
	}

	oldKEK := crypto.DeriveKey([]byte(oldPassword), salt)
	defer crypto.ClearBytes(oldKEK)
	dek, err := crypto.NewEncryptor(oldKEK).Decrypt(sealed)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return fmt.Errorf("%w: %w", ErrWrongPassword, err)
		}
		return err
	}
	defer crypto.ClearBytes(dek)

	newSalt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	newKEK := crypto.DeriveKey([]byte(newPassword), newSalt)
	defer crypto.ClearBytes(newKEK)
	resealed, err := crypto.NewEncryptor(newKEK).Encrypt(dek)
	if err != nil {
		return err
	}

	// Salt and sealed DEK must move together.
	return s.eng.ApplyBatch([]engine.Op{
		{Key: engine.MetaKey(metaSalt), Value: newSalt},
		{Key: engine.MetaKey(metaDEK), Value: resealed},
	})
}
