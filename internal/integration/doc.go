// Package integration holds end-to-end tests that wire the stores, the
// document lifecycle, hybrid retrieval and the answer pipeline together the
// way the notebooklm commands do. It has no non-test code.
package integration
