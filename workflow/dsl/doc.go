// Package dsl implements the condition expression language used by condition
// nodes. Expressions are evaluated against run state with no side effects:
// no function calls, no assignment, no access outside the supplied state map.
package dsl
