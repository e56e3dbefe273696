// Package permission materializes the per-session authorization tree from the
// flat membership and grant rows the store returns.
//
// The tree is Organization → Building → bookable flags, permanent seat/asset
// bindings, and effective admin Functions/AssetTypes. Rows are expected to be
// pre-filtered by role server-side: SuperAdmin rows cover everything reachable
// through the caller's building memberships, Admin rows carry only explicit
// scope grants, and User/NoAccess/Tablet memberships contribute no admin rows.
//
// Aggregation is a single pass per row set with O(1) map lookups. Auxiliary
// rows referencing a building or organization absent from the primary
// membership sets are dropped; they must never materialize a building the
// caller holds no membership for.
package permission
