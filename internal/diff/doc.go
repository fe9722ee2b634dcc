// Package diff compares two versions of a catalog record.
//
// The engine walks a fixed list of tracked attributes, each defined by a
// name, an equality check and a renderer. Strings compare literally; the tag
// list compares element by element. Only attributes whose values differ
// appear in the returned ChangeSet.
package diff
