// Package usage fetches the signed-in user's API quota. A single health probe
// gates the fetch; the usage call itself is retried with a fixed-delay policy.
// Usage data is informational, so every failure degrades to a nil result.
package usage
