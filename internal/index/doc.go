// Package index defines the domain types and store contracts shared by the
// ingestion, orchestration and scoring subsystems.
package index
