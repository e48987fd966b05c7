// Package lal implements a structured binary logging pipeline: per-producer
// streams encode typed messages and nested regions into double-buffered
// memory, a background pipeline consolidates them into a block-framed log
// file plus a sidecar format-descriptor file, and the analyze/algebra
// packages reconstruct and query the result offline.
package lal
