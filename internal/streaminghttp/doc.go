// Package streaminghttp serves the MCP streamable HTTP transport.
//
// A session begins when a POST carrying an initialize request arrives
// without a session header; the response carries the assigned id in the
// Mcp-Session-Id header, and every later request presents it. POST bodies
// hold exactly one JSON-RPC message each. GET opens a server-sent events
// stream for push traffic, and DELETE tears the session down.
//
// Requests correlate through a pending table registered before the message
// is routed to the session engine, so an immediate response cannot slip
// past its waiter. Each pending slot resolves exactly once: with the
// matching response, with a timeout, or by session termination.
package streaminghttp
