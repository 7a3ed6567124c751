// Package spantree turns a flat set of runs into an ordered forest of spans.
//
// Build is pure. Builder adds warn-level logging and metrics for the
// anomalies collected in a Report; none of them is an error.
package spantree
