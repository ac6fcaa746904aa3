// Package token hashes opaque session tokens before they reach storage.
//
// Stores only ever see the 64-char hex digest. With TODOLIST_TOKEN_HMAC_KEY
// set the digest is HMAC-SHA256 keyed by it, otherwise plain SHA-256 (local
// development). Deployments that require the keyed mode enforce a 32-byte
// minimum key through HMACKeyFromEnv.
package token
