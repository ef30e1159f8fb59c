// Package trivial implements the rewrite service that answers the
// requests issued by package resolve.
//
// The service listens on a unix socket and handles one request at a time
// per connection. "rewrite" requests canonicalize an address through a
// ruleset: bare local parts get "@myorigin" appended and canonical_maps
// may replace the whole address or its domain. "resolve" requests pick a
// transport and nexthop: relocated_maps turn a recipient into a bounce,
// domains in mydestination go to the local transport, transport_maps
// override the route per address or domain, and everything else uses the
// default transport with the domain as nexthop.
//
// A failing table sets the fail bit in the leading flags attribute of the
// reply so clients can defer instead of trusting a partial answer.
package trivial
