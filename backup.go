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
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/go-crypt/x/blake2b"
	"github.com/mus-format/mus-go/varint"

	"github.com/sealkv/sealkv/crypto"
	"github.com/sealkv/sealkv/engine"
)

// Backup payload layout: an 8-byte magic header followed by frames.
// Each frame is a 4-byte big-endian blob length and an AEAD blob sealed
// under the backup DEK. The blob's plaintext is one type byte plus a
// payload: data frame payloads concatenate into one stream of key/value
// records (varint key length, key, varint value length, value), so a
// record larger than the chunk size spans frames. The single digest
// frame carries the BLAKE2b-256 digest of all record bytes and
// terminates the stream.
const (
	backupMagic = "sealkvb1"

	frameData   byte = 0x00
	frameDigest byte = 0x01

	// Record plaintext is cut into frames of at most this size, so
	// backups of large stores and values stay bounded in memory.
	frameChunkSize = 64 << 10

	// Upper bound on a single sealed frame; larger lengths mean a
	// corrupt or foreign stream.
	maxFrameSize = 16 << 20

	digestSize = 32
)

// Backup exports the full key space to backupPath, encrypted under a
// fresh random DEK, and writes the DEK sealed by a key derived from
// password to dekPath. Stored values are decrypted first when the store
// itself is encrypted, so the backup is portable across stores with
// different passwords. Both artifacts must be retained together:
// without the dek file the payload is unrecoverable regardless of
// password.
func (s *Storage) Backup(backupPath, dekPath, password string) (err error) {
	if !s.policy.Validate(password) {
		return ErrWeakPassword
	}

	dek, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(dek)

	// A failed backup must not leave partial artifacts behind: a dek
	// file without its payload is useless, a truncated payload is
	// unrestorable.
	defer func() {
		if err != nil {
			os.Remove(backupPath)
			os.Remove(dekPath)
		}
	}()

	if err := writeSealedDEK(dekPath, dek, password); err != nil {
		return err
	}

	f, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer f.Close()

	buffered := bufio.NewWriter(f)
	w, err := newBackupWriter(buffered, dek)
	if err != nil {
		return err
	}

	entries := 0
	err = s.eng.Scan("", func(e engine.Entry) error {
		value := e.Value
		if s.enc != nil {
			plain, err := s.enc.Decrypt(e.Value)
			if err != nil {
				return fmt.Errorf("decrypt %q: %w", e.Key, err)
			}
			value = plain
		}
		entries++
		return w.writeRecord(e.Key, value)
	})
	if err != nil {
		return err
	}

	if err := w.finish(); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.logger.Debug("backup written", "path", backupPath, "entries", entries)
	return nil
}

// Restore imports every key/value pair of a backup into the store,
// re-encrypting values under the store's own key when one is
// configured. The import happens in one transaction: a wrong password,
// a corrupt stream or an engine failure leave the store unmodified.
func (s *Storage) Restore(backupPath, dekPath, password string) error {
	dek, err := readSealedDEK(dekPath, password)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(dek)

	f, err := os.Open(backupPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := newBackupReader(bufio.NewReader(f), dek)
	if err != nil {
		return err
	}

	id := s.Begin()
	entries := 0
	for {
		key, value, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.Rollback(id)
			return err
		}
		if err := s.WriteTx(key, value, id); err != nil {
			s.Rollback(id)
			return err
		}
		entries++
	}

	if err := s.Commit(id); err != nil {
		s.Rollback(id)
		return err
	}

	s.logger.Debug("backup restored", "path", backupPath, "entries", entries)
	return nil
}

// ChangeBackupPassword reseals an existing backup's DEK file under a
// new password. The backup payload is untouched.
func (s *Storage) ChangeBackupPassword(dekPath, oldPassword, newPassword string) error {
	if !s.policy.Validate(newPassword) {
		return ErrWeakPassword
	}

	dek, err := readSealedDEK(dekPath, oldPassword)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(dek)

	return writeSealedDEK(dekPath, dek, newPassword)
}

// writeSealedDEK writes salt || AEAD(KDF(password, salt), dek).
func writeSealedDEK(path string, dek []byte, password string) error {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	kek := crypto.DeriveKey([]byte(password), salt)
	defer crypto.ClearBytes(kek)

	sealed, err := crypto.NewEncryptor(kek).Encrypt(dek)
	if err != nil {
		return err
	}

	out := make([]byte, 0, len(salt)+len(sealed))
	out = append(out, salt...)
	out = append(out, sealed...)
	return os.WriteFile(path, out, 0o600)
}

func readSealedDEK(path, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < crypto.SaltSize+crypto.NonceSize+crypto.TagSize {
		return nil, fmt.Errorf("%w: dek file too short", ErrCorruptBackup)
	}

	salt, sealed := data[:crypto.SaltSize], data[crypto.SaltSize:]
	kek := crypto.DeriveKey([]byte(password), salt)
	defer crypto.ClearBytes(kek)

	dek, err := crypto.NewEncryptor(kek).Decrypt(sealed)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %w", ErrWrongPassword, err)
		}
		return nil, err
	}
	return dek, nil
}

func marshalBackupRecord(key string, value []byte) []byte {
	kl := uint64(len(key))
	vl := uint64(len(value))
	buf := make([]byte, varint.Uint64.Size(kl)+len(key)+varint.Uint64.Size(vl)+len(value))
	n := varint.Uint64.Marshal(kl, buf)
	n += copy(buf[n:], key)
	n += varint.Uint64.Marshal(vl, buf[n:])
	copy(buf[n:], value)
	return buf
}

type backupWriter struct {
	w      io.Writer
	enc    *crypto.Encryptor
	buf    []byte
	digest hash.Hash
}

func newBackupWriter(w io.Writer, dek []byte) (*backupWriter, error) {
	digest, err := blake2b.New(digestSize, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(backupMagic)); err != nil {
		return nil, err
	}
	return &backupWriter{
		w:      w,
		enc:    crypto.NewEncryptor(dek),
		digest: digest,
	}, nil
}

func (w *backupWriter) writeRecord(key string, value []byte) error {
	rec := marshalBackupRecord(key, value)
	w.digest.Write(rec)
	w.buf = append(w.buf, rec...)
	for len(w.buf) >= frameChunkSize {
		if err := w.sealFrame(frameData, w.buf[:frameChunkSize]); err != nil {
			return err
		}
		w.buf = append(w.buf[:0], w.buf[frameChunkSize:]...)
	}
	return nil
}

func (w *backupWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	err := w.sealFrame(frameData, w.buf)
	w.buf = w.buf[:0]
	return err
}

// finish flushes pending records and appends the authenticated digest
// trailer.
func (w *backupWriter) finish() error {
	if err := w.flush(); err != nil {
		return err
	}
	return w.sealFrame(frameDigest, w.digest.Sum(nil))
}

func (w *backupWriter) sealFrame(typ byte, payload []byte) error {
	plain := make([]byte, 1+len(payload))
	plain[0] = typ
	copy(plain[1:], payload)

	blob, err := w.enc.Encrypt(plain)
	if err != nil {
		return err
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(blob)))
	if _, err := w.w.Write(length[:]); err != nil {
		return err
	}
	_, err = w.w.Write(blob)
	return err
}

type backupReader struct {
	r      io.Reader
	enc    *crypto.Encryptor
	buf    []byte
	off    int
	digest hash.Hash
	done   bool
}

func newBackupReader(r io.Reader, dek []byte) (*backupReader, error) {
	digest, err := blake2b.New(digestSize, nil)
	if err != nil {
		return nil, err
	}

	magic := make([]byte, len(backupMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: missing header", ErrCorruptBackup)
	}
	if string(magic) != backupMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptBackup)
	}

	return &backupReader{
		r:      r,
		enc:    crypto.NewEncryptor(dek),
		digest: digest,
	}, nil
}

// next returns the next key/value record, or io.EOF after the digest
// trailer has been read and verified. Records may straddle frame
// boundaries, so each field pulls in further frames as needed.
func (r *backupReader) next() (string, []byte, error) {
	if err := r.fill(1); err != nil {
		return "", nil, err
	}
	if r.done && r.off >= len(r.buf) {
		return "", nil, io.EOF
	}

	kl, err := r.readLength("key")
	if err != nil {
		return "", nil, err
	}
	key, err := r.readBytes(kl)
	if err != nil {
		return "", nil, err
	}
	vl, err := r.readLength("value")
	if err != nil {
		return "", nil, err
	}
	value, err := r.readBytes(vl)
	if err != nil {
		return "", nil, err
	}
	return string(key), value, nil
}

// fill reads frames until at least n unread stream bytes are buffered
// or the digest trailer ends the stream.
func (r *backupReader) fill(n int) error {
	for len(r.buf)-r.off < n && !r.done {
		if err := r.readFrame(); err != nil {
			return err
		}
	}
	return nil
}

func (r *backupReader) readLength(field string) (int, error) {
	if err := r.fill(binary.MaxVarintLen64); err != nil {
		return 0, err
	}
	v, n, err := varint.Uint64.Unmarshal(r.buf[r.off:])
	if err != nil {
		return 0, fmt.Errorf("%w: bad record %s length", ErrCorruptBackup, field)
	}
	r.off += n
	return int(v), nil
}

func (r *backupReader) readBytes(n int) ([]byte, error) {
	if err := r.fill(n); err != nil {
		return nil, err
	}
	if n < 0 || len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: record cut short", ErrCorruptBackup)
	}
	b := append([]byte(nil), r.buf[r.off:r.off+n]...)
	r.off += n
	return b, nil
}

func (r *backupReader) readFrame() error {
	var length [4]byte
	if _, err := io.ReadFull(r.r, length[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// The digest trailer never arrived.
			return ErrTruncatedBackup
		}
		return err
	}
	size := binary.BigEndian.Uint32(length[:])
	if size > maxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes", ErrCorruptBackup, size)
	}

	blob := make([]byte, size)
	if _, err := io.ReadFull(r.r, blob); err != nil {
		return ErrTruncatedBackup
	}

	plain, err := r.enc.Decrypt(blob)
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return fmt.Errorf("%w: empty frame", ErrCorruptBackup)
	}

	typ, payload := plain[0], plain[1:]
	switch typ {
	case frameData:
		r.digest.Write(payload)
		if r.off > 0 {
			r.buf = append(r.buf[:0], r.buf[r.off:]...)
			r.off = 0
		}
		r.buf = append(r.buf, payload...)
		return nil
	case frameDigest:
		if !bytes.Equal(payload, r.digest.Sum(nil)) {
			return ErrCorruptBackup
		}
		r.done = true
		return nil
	default:
		return fmt.Errorf("%w: unknown frame type %#x", ErrCorruptBackup, typ)
	}
}
