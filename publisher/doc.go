// Package publisher provides the outbound processor that sends persisted
// events to an external transport.
//
// Every publisher routes events with exactly one of:
//
//   - a static topic, the same route for every event
//   - a Multicaster, which may fan one event out to several routes
//   - a RouteBuilder, which computes one route per event
//
// Anything else fails the start, as does a transport that cannot connect.
// Events are published once; a failed publish is counted and returned to the
// outbound chain, which logs it.
package publisher
