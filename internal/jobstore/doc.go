// Package jobstore persists submitted statement jobs in Redis and drives
// their status lifecycle: PENDING -> EXECUTING -> COMPLETED | FAILED. The
// statement engine itself is an injected Executor; this package only owns
// the record keeping around it.
package jobstore
