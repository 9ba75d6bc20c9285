// Package storage persists the encrypted vault document.
//
// The vault file holds exactly one sealed blob (see package crypto). Writes
// go to a temp file in the same directory which is fsynced and renamed over
// the target, so a crash leaves either the previous or the new blob on
// disk. Files are created with mode 0600.
//
// A missing vault file, or one truncated to zero bytes, loads as an empty
// document. Anything else that fails authentication or parsing is an error.
package storage
