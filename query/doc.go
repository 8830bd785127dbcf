// Package query turns caller supplied filter and sort parameters into a typed
// Spec consumed by the store's filtered reader.
//
// Filters arrive as a map[string]any because they originate from query
// strings, JSON bodies or CLI flags. Every value is parsed with the same
// parse-to-optional helpers used for upstream data, so a value that does not
// parse simply leaves that filter unset.
package query
