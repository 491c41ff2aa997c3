// Package store declares the persistence contracts for tasks and job
// records, the errors every implementation returns, and helpers that work
// on top of any TaskStore.
package store
