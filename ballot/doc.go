// Package ballot implements the ElGamal scheme used by secret ballot
// elections, over the Ed25519 group.
//
// The organizer (or the device holding the election key) generates a
// KeyPair and publishes its public key with an election#key message.
// Voters encrypt the index of their ballot option with EncryptVote; the
// ciphertext is the 64 bytes K||C where K = g^k and C = M + pk^k, M being
// the 2-byte big-endian index embedded in a point. Decryption recovers
// M = C - sk*K.
package ballot
