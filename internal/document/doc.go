// Package document models the vault's settings tree.
//
// A Document is always a mapping at the top level. Values are a tagged
// union of null, bool, number, string, ordered list and nested mapping.
// Numbers keep their literal JSON text so that a document re-serializes
// byte for byte.
//
// Dotted paths ("features.welcome") address nested mappings. Segments are
// matched literally; there is no escaping for a '.' inside a key.
package document
