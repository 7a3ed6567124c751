// Package runs queries the LangSmith run store.
//
// Queries are expressed as Filters rendered to LangSmith's filter grammar
// and sent through a Poster, normally a governor.Governor. Responses are
// decoded through an explicit wire schema; records without an id or a
// parseable start time are quarantined and logged rather than returned.
package runs
