// Package engine runs migrant's top-level operations: apply pending changes,
// revert, list pending, list the ledger, and inspect or clear the lock.
//
// Every operation is a pipeline.Command executed through a fixed interceptor
// chain:
//
//	lock interceptor      acquire the distributed lock, release on every exit path
//	services interceptor  open the state repository, connector registry and hash service
//	command               the operation itself
//
// Commands started from inside another command (ApplyPending lists pending
// changes with a nested ListPending) reuse the outer RunContext and skip the
// chain, so the lock is never taken twice and services are opened once per
// invocation.
//
// Changes run strictly one at a time in catalog order. A failing change halts
// the run; changes that already ran stay recorded.
package engine
