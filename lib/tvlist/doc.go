// Package tvlist provides the in-memory columnar time-value store that
// accumulates writes before they are flushed to disk.
//
// The central type is AlignedTVList: a column-major block of rows where every
// row shares a single timestamp across all declared value columns. Rows are
// appended in arbitrary timestamp order and a Sort() call establishes
// ascending-time order in place.
//
// The package focuses on:
//   - Aligned multi-column rows with per-column null bitmaps
//   - Single-row and bulk-range appends with column-order remapping
//   - Stable in-place sort by timestamp (bitmaps permuted congruently)
//   - Deep cloning for readers that need an independent snapshot
//
// Thread-safety: an AlignedTVList is single-writer. Concurrent readers must
// Clone() first and read the clone.
package tvlist
