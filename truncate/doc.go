// Package truncate shortens text for logs and error messages.
//
// Protocol lines and stderr output can be arbitrarily long. Events always
// carry the full text; this package only bounds what is copied into log
// attributes and error strings.
//
// Three strategies are available:
//
//   - FromEnd: keep the beginning (default)
//   - FromMiddle: keep the beginning and the end
//   - FromStart: keep the end, where CLI failures usually print the cause
//
// Lengths are counted in runes so multi-byte characters are never split.
package truncate
