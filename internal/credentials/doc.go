// Package credentials persists the desktop session credential.
//
// A single JSON document is stored per installation, by default at
//
//	~/.config/deskauth/credentials.json
//
// SECURITY: the file holds a bearer token. The directory is created with
// 0700 and the file with 0600 permissions, and token values are never logged.
//
// Writes are atomic (temp file, fsync, rename) so a crash mid-write leaves
// either the previous document or a stray temp file behind, never a partial
// credential. A document that cannot be parsed is reported as absent.
package credentials
