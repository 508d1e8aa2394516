// Package mcp exposes the aggregation pipeline over the Model Context
// Protocol.
//
// The server speaks the stdio transport, so stdout carries the protocol
// and all logging goes to stderr. It registers typed tools for recall and
// search over the merged conversation view, raw per-tool queries, file
// export, and store discovery. Free-text tool output is scrubbed for
// secrets before it reaches the client.
package mcp
