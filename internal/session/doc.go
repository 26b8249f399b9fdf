// Package session provides the SQLite-backed session store for xenodash.
//
// The store persists a small amount of client state across process restarts:
//   - The bearer token under the fixed key "token"
//   - The last selected store id under "selected_store"
//
// A Session is hydrated from disk on Open, so a user who logged in once stays
// logged in until an explicit Logout. No validation of the token is performed;
// any non-empty string is accepted and attached as a bearer credential.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Schema changes are tracked with PRAGMA user_version.
package session
