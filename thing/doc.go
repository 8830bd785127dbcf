// Package thing defines the cached game record and the helpers that shape
// upstream data into it.
//
// # Records
//
// A Thing is keyed by its BoardGameGeek identifier. Besides its scalar
// attributes it carries three bookkeeping fields:
//
//   - LastCached: when the record was last written from upstream data. The
//     zero value means the record was never cached.
//   - SchemaVersion: the revision of the extraction logic that produced the
//     record. Records below the configured minimum are refreshed regardless
//     of age.
//   - MechanicsChecksum: a fingerprint of the mechanic name set, used to
//     skip association rewrites when the set did not change.
//
// # Loose upstream values
//
// The upstream API delivers every scalar as a string, and some of them are
// not numbers at all ("Not Ranked", empty values). ParseNumber and ParseInt
// convert such values to an optional number and never fail; the same
// functions are used when parsing filter values supplied by callers.
//
// # Mechanics
//
// Mechanics are shared tags. Their slug is derived with Slugify and is the
// lookup key when reconciling associations. MechanicsChecksum is stable
// across ordering, case and duplicates.
package thing
