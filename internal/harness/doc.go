// Package harness runs change application scenarios end to end.
//
// A scenario describes a change catalog, a sequence of engine operations
// against it and the outcome expected from each. The harness runs every step
// against a real engine with a recording connector, a manual clock and a
// throwaway SQLite or flat-file ledger, so the resulting trace is identical
// across runs and can be compared against a golden file.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  environment: prod
//	catalog:
//	  1.0/001.create_table..apply.sql.sql: "CREATE TABLE t (id INT);"
//	steps:
//	  - run: apply
//	    expect:
//	      executed: [1.0/001.create_table..apply.sql.sql]
//	  - run: apply
//	    write: { 1.0/001.create_table..apply.sql.sql: "changed" }
//	    fail: { 1.0/002.x..apply.sql.sql: "syntax error" }
//	    expect:
//	      error: execution
//	assertions:
//	  - type: final_ledger
//	    ledger: [1.0/001.create_table..apply.sql.sql]
//
// # Step Commands
//
//   - apply, revert, pending: the engine operations, honouring filter,
//     limit and dry_run
//   - catalog: lists the apply catalog
//   - state: reads the ledger only
//   - hold_lock: takes the lock as another host
//   - release_lock: force-releases the lock
//   - lock_status: records the current holder
//
// Before each step the clock advances one minute plus the step's advance.
//
// # Assertion Types
//
//   - executed_order: the changes were executed in this relative order
//   - execution_count: a change was executed exactly N times
//   - final_ledger: the ledger holds exactly these changes
//   - lock_free: nobody holds the lock at the end
package harness
