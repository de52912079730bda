// Package secure holds the process-wide allocator canary in memguard storage.
//
// The canary is drawn from memguard's random source into a LockedBuffer and
// frozen, which gives it:
//
//   - Locked pages, so it is never swapped out
//   - Guard pages on both sides
//   - A read-only mapping after Freeze
//   - Wiping on memguard.Purge and memguard.SafeExit
//
// # Platform Behavior
//
// memguard panics rather than returning an error when it cannot lock or map
// memory (typically RLIMIT_MEMLOCK on Linux). NewCanary recovers from that
// and falls back to ordinary heap memory filled from crypto/rand, so callers
// can tell the two apart with Locked but keep working either way.
package secure
