// Package vault implements the encrypted file vault container engine: a
// single self-contained file that stores an arbitrary collection of user
// files under one passphrase, with authenticated confidentiality of both
// file contents and file metadata.
//
// The package owns the on-disk format, the key hierarchy, the journaled
// header, the padded encrypted index, the streaming chunked-import
// subsystem, and the fast/slow-path update algorithms. It does not provide
// multi-writer concurrency to one container, networked access, or forward
// secrecy across passphrase changes.
package vault
