// Package password implements password hashing and verification.
//
// # Output formats
//
// Bcrypt hashes use the modular crypt form ($2a$/$2b$). Argon2id hashes are
// encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] hashes with one scheme and verifies any configured scheme, so stored
// hashes can move between algorithms. NeedsUpgrade reports when a stored hash
// should be replaced on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the engine.
package password
