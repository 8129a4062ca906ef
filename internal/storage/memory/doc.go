// Package memory provides map-backed implementations of the index stores and
// blob store for development and tests.
package memory
