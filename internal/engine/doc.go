// Package engine runs parameter sweeps. A sweep fans a list of parameter
// sets out to a fixed pool of workers, each bound to one (host, processor)
// slot, and reassembles the results in submission order. Failed samples are
// isolated: they leave a NaN row and a diagnostic block in the log sink, and
// the rest of the sweep carries on.
//
// Submitted sweeps are additionally recorded in the store, and their progress
// is streamed through the LogBroker.
package engine
