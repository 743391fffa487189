// Package storage is the persistence ledger behind the dedup window and the
// stock queue.
//
// It offers three kinds of operations:
//   - key sets: load all / replace all (a JSON array per named set)
//   - stock rows: append, count, list, delete
//   - stock pop: atomically remove and return the oldest row of a product
//
// Drivers: "memory", "file", "sqlite", "postgres", "pebble".
package storage
