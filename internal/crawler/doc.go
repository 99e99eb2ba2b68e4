// Package crawler holds the types shared by every acquisition source: work
// items, fetch requests and responses, the capability interfaces, and the
// Pipeline that fetches (or renders) an item, stores it and records it.
package crawler
