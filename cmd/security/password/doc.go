// Package password hashes and verifies account passwords with Argon2id.
//
// Encoded hashes use the PHC string layout
// ($argon2id$v=19$m=..,t=..,p=..$salt$key) so they can be stored in a single
// text column and verified later even after the cost parameters change.
// Stored hashes are treated as untrusted input by Verify.
package password
