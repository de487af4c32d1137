// Package version owns cache versions per operation kind and derives table
// names from them.
//
// Bumping the version of a kind is how cached decisions are invalidated: the
// next resolution of every signature of that kind targets a fresh table while
// the old table is left untouched, so reverting the version rolls back.
// Managers are immutable; overrides produce a new Manager.
package version
