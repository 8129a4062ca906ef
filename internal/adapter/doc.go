// Package adapter turns upstream listings into lazy sequences of normalized
// index candidates. One adapter exists per source type; Factory maps a
// configured source to its adapter.
package adapter
