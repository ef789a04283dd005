// Package processor holds the machinery shared by the inbound and outbound
// processor chains.
//
// A chain supervises an ordered, immutable list of processors. Every event is
// offered to every processor in registration order; a processor that returns an
// error or panics is logged and counted, and the remaining processors still see
// the event.
package processor
