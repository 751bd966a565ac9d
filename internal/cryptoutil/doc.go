// Package cryptoutil provides signing and verification primitives for
// release manifests.
//
// It supports:
//   - KMS-backed signing with a locally computed digest
//   - KMS-backed signature verification (ECDSA P-256/P-384, RSA-PSS with optional PKCS1v15 fallback)
//   - Constant-time hash comparison
//   - SHA-256 hashing
package cryptoutil
