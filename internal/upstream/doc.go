// Package upstream holds the configured upstream addresses and the subset
// currently believed live. The live set is shared by every connection handler
// and by the health checker, and may legitimately become empty.
package upstream
