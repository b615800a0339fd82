// Package catalog discovers change files under a root directory and returns
// them in execution order.
//
// Directories are visited breadth first; siblings are ordered by natural
// version order ("1.2" < "1.10" < "2.0"). Files inside a directory are
// ordered by their numeric order key. Reverts visit directories and files in
// exactly the reverse of the apply order so that the most recent change is
// undone first.
package catalog
