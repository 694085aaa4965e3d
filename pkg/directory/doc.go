// Package directory implements the identity store, the group directory,
// and the auto-assignment rule engine.
//
// All user and group state is owned by a single Service. Mutations are
// serialized behind one writer lock because group membership edits and
// permission recomputation are multi-step and must not interleave.
//
// Two invariants hold after every mutation:
//
//   - a user's permission set equals the union of the permissions granted
//     by the groups the user currently holds
//   - membership is bidirectional: a user appears in a group's member list
//     exactly when the group appears in the user's group list
package directory
