// Package poll implements the price poll scheduler.
//
// The poller:
//   - Fetches every tracked asset in one request per cycle
//   - Runs cycle 0 on Start, then one cycle per interval until Stop
//   - Keeps at most one fetch in flight; ticks that land on a busy poller are skipped
//   - Merges successful results into the cache and reports failures through a hook
//   - Lets an in-flight fetch finish and merge after Stop
package poll
