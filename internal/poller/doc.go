// Package poller implements the resync poller.
//
// The poller:
//   - Forces every registered cache to refetch its REST snapshot on an interval
//   - Skips caches that are not subscribed or whose symbol has stopped trading
//   - Bounds concurrent requests with an errgroup limit
package poller
