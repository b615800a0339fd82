// Package lock implements a lease-based mutual exclusion protocol over a
// single-row table shared by every invocation that targets one environment.
//
// Protocol:
//   - Acquire: UPDATE ... SET lock_id, lock_expiration, locked_by
//     WHERE lock_id IS NULL OR lock_expiration < now
//   - Renew:   UPDATE ... SET lock_expiration WHERE lock_id = ours
//   - Release: UPDATE ... SET lock_id = NULL WHERE lock_id = ours
//
// One changed row means success. Zero changed rows means another holder has
// a valid lease (acquire) or our lease was lost (renew). Any other count means
// the table no longer holds exactly one row and is reported as an
// InvariantError; it is never tolerated.
//
// This is a lease, not a strict mutex: a holder that dies without releasing
// is superseded once its expiration passes.
//
// Expirations are stored as Unix milliseconds so the comparison behaves the
// same in every dialect.
package lock
