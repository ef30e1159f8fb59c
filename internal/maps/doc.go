// Package maps searches an ordered list of lookup tables as one table.
//
// A MapSet is built from a list such as "texthash:/etc/spool/transport,
// regexp:/etc/spool/transport.re". Lookups walk the list in order and the
// first table that knows the key wins, so the configured order is a
// user-visible precedence rule. Backends come from a shared dict.Registry;
// two sets naming the same table share one open instance.
//
// A MapSet records the outcome of its most recent lookup in Err. It is not
// safe for concurrent use.
package maps
