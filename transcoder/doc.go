// Package transcoder moves text across the native boundary.
//
// Strings leave Go as NUL-terminated buffers on the native heap and come
// back as copies; the native buffer is never retained past the copy.
//
//	┌──────────────────────────────────────────────────────────┐
//	│ Go string ──ToNative──▶ char* (Scope) ──call──▶ library  │
//	│ Go string ◀──ToManaged── char*        ◀────────────────  │
//	│ []string  ◀──DrainStringArray── {count, items} ──▶ free  │
//	└──────────────────────────────────────────────────────────┘
//
// # Key Types
//
//	Codec  - text encoding (UTF-8 or a named charset, strict or lossy)
//	Scope  - ephemeral native allocations of one call, freed together
//
// # String Arrays
//
// The library returns lists as a two-word header:
//
//	Offset  Size  Field
//	──────────────────────────────
//	0       4     count
//	4       4     items (char**)
//
// Only items[0..count-1] are read. Anything past count is ignored.
//
// # Decoding
//
// Invalid input is an error unless the codec is lossy, in which case
// offending bytes become U+FFFD.
package transcoder
