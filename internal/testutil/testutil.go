// Package testutil provides assertion helpers shared by tests.
//
// Fixture builders live in subpackages: email builds MIME messages and
// .emlx files, storetest builds indexed entries.
package testutil
