// Package change defines the identity of a change file and its naming convention.
//
// A change file is named
//
//	<order>.<description>[.<environment>].<type>.<connector>.<extension>
//
// where <type> is one of apply, apply_always, apply_on_change or revert.
// The canonical form of a ChangeID is the file name prefixed with the
// slash-separated directory it lives in, relative to the catalog root:
//
//	1.0/001.create_table..apply.sql.sql
//
// The canonical form is the ledger's primary key. It always carries the
// environment segment (empty when absent) so that Parse(id.String()) == id.
//
// File names are normalised to Unicode NFC before parsing so that a catalog
// checked out on a filesystem that stores decomposed names produces the same
// ledger keys as one that stores composed names.
package change
