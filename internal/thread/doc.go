// Package thread assembles the complete span forest of one thread and
// summarizes threads for listing.
package thread
