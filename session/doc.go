// Package session persists refresh-token sessions in Redis.
//
// # Storage layout
//
// Each session is a Redis HASH at <prefix>:s:<sid> holding the fixed field set
// of [Session]. The key carries a PEXPIREAT at the session's expiry so Redis
// reaps expired rows itself; [Store.Reap] only tidies the per-user index sets
// at <prefix>:u:<userID> and any row whose TTL was lost.
//
// # State transitions
//
// A session is created active and may only move to blacklisted. [Store.Consume]
// performs the "blacklist only if currently active, unexpired, and owned by the
// caller" transition inside a single Lua script, which is what makes refresh
// rotation single-use under concurrent retries.
//
// # What this package must NOT do
//
//   - Interpret tokens or passwords.
//   - Cache session status in process memory.
//   - Report a Redis failure as [ErrNotFound].
package session
