// Package git checks that vault artifacts stay out of version control.
//
// Checks performed:
//   - Whether the key file, safe view or backups are tracked by git (must not be)
//   - Whether they are covered by .gitignore (should be)
//
// The vault file itself is encrypted and may be tracked, but only while the
// key file is not.
package git
