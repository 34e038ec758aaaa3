package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTopology is returned when a worker topology is neither a positive
// count nor a non-empty host to processor mapping.
var ErrInvalidTopology = errors.New("invalid worker topology")

// Host lists the processor ids available on one host.
type Host struct {
	Name       string `json:"name"`
	Processors []int  `json:"processors"`
}

// Topology describes the worker pool of a sweep: either a plain worker count
// or an ordered list of hosts whose processors each get one worker.
type Topology struct {
	Count int    `json:"count,omitempty"`
	Hosts []Host `json:"hosts,omitempty"`
}

// Workers returns a count-only topology.
func Workers(n int) Topology {
	return Topology{Count: n}
}

// Hosts returns a host-tagged topology.
func Hosts(hosts ...Host) Topology {
	return Topology{Hosts: hosts}
}

// Slot is the fixed tag a worker passes through to every model invocation.
type Slot struct {
	Host      string
	Processor int
	Tagged    bool
}

// Slots expands the topology into one Slot per worker. Host order is
// preserved so tag assignment is deterministic.
func (t Topology) Slots() ([]Slot, error) {
	if len(t.Hosts) > 0 {
		if t.Count != 0 {
			return nil, fmt.Errorf("%w: count and hosts are mutually exclusive", ErrInvalidTopology)
		}
		var slots []Slot
		for _, h := range t.Hosts {
			if h.Name == "" {
				return nil, fmt.Errorf("%w: empty host name", ErrInvalidTopology)
			}
			for _, p := range h.Processors {
				slots = append(slots, Slot{Host: h.Name, Processor: p, Tagged: true})
			}
		}
		if len(slots) == 0 {
			return nil, fmt.Errorf("%w: hosts declare no processors", ErrInvalidTopology)
		}
		return slots, nil
	}

	if t.Count <= 0 {
		return nil, fmt.Errorf("%w: worker count %d", ErrInvalidTopology, t.Count)
	}
	return make([]Slot, t.Count), nil
}

// Size returns the effective worker count, or 0 if the topology is invalid.
func (t Topology) Size() int {
	slots, err := t.Slots()
	if err != nil {
		return 0
	}
	return len(slots)
}
