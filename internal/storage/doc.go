// Package storage provides the task store used by the scheduler.
//
// It currently supports:
//   - Task records (create, list, delete, due selection, acquire/release)
//   - Run history (bounded, newest first)
//
// Drivers: memory, file (snapshot + journal), sqlite.
package storage
