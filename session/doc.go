// Package session caches the materialized permission tree in redis for the
// life of a login session. The engine builds the tree once per successful
// credential verification; authorization checks read the cached copy instead
// of re-aggregating grant rows on every call.
package session
