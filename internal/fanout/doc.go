// The SQL filter fragment in Options.Filter is trusted input. It is
// produced by the query classifier/router layer (internal/classify,
// internal/qrouter) parsing an internal `SEMANTIC '<text>' WHERE <sql>`
// form, not typed directly by an end user, and is interpolated into a
// per-shard WHERE clause without further sanitization — mirroring how the
// teacher's own classifier treats its regex-extracted SQL fragments as
// trusted internal structure rather than untrusted user text. A caller
// exposing this package to untrusted callers is responsible for validating
// or rejecting filter strings before they reach Options.Filter.
package fanout
