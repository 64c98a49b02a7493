// Package sensor produces the records the agent ships.
//
// GPSD connects to a gpsd daemon over TCP, enables JSON watch mode and turns
// every report line into a Record, optionally keeping only some report
// classes. Simulator emits TPV-shaped fixes from a random walk and is meant
// for bench setups with no receiver attached.
//
// Both sources stop when their context is cancelled. A source that cannot
// start returns an error wrapping ErrSetup.
package sensor
