// Package storage keeps the trigger audit log.
//
// Nothing the display shows is persisted: the queue and the inbox live in
// memory only. The audit log records who asked for what, and when.
package storage
