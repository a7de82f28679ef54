/*
Package brokerpc is a server/client library for doing RPC over a pluggable
message broker. It uses a self-describing map-based wire format for
payloads and has no fixed request/response schema baked into the wire
protocol itself (schemas, if any, are validated by the caller's own
validator).

brokerpc works with Services and Actions. A Server serves one Service, and
that Service exposes a fixed set of named Actions. Clients bundle one or
more Actions into a Job and send it to a Service in a single round trip.

E.g.:

	Service users
		+ Action users.get
		+ Action users.create
		+ Action users.delete
*/
package brokerpc
