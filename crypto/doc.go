// Package crypto provides the cipher primitives for sealkv.
//
// Encryption uses AES-256-GCM with:
//   - a 32-byte key, either random (DEKs) or derived from a password
//   - a 12-byte random nonce per encryption, prepended to the blob
//   - an authentication tag that decryption verifies
//
// Key derivation uses PBKDF2-HMAC-SHA256 with a 32-byte random salt and
// 210,000 iterations. A failed tag verification is the only way a wrong
// password is ever detected; there is no separate correctness check.
package crypto
