// Package audit defines the append-only audit fact model and the asynchronous
// dispatcher that forwards facts to a caller-supplied sink. The engine emits
// exactly one fact per logical mutation, carrying a correlation id so a
// persisting sink can cascade related rows under a shared key. The engine
// never reads its own audit trail back.
package audit
