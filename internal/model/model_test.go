package model

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusKilled, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusCompleted, StatusRunning, false},
		{StatusKilled, StatusRunning, false},
		{StatusPending, StatusCompleted, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTopologySlotsCount(t *testing.T) {
	slots, err := Workers(4).Slots()
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("len(slots) = %d, want 4", len(slots))
	}
	for i, s := range slots {
		if s.Tagged {
			t.Errorf("slot %d is tagged, want untagged", i)
		}
	}
}

func TestTopologySlotsHosts(t *testing.T) {
	topo := Hosts(
		Host{Name: "hostA", Processors: []int{0, 1}},
		Host{Name: "hostB", Processors: []int{0}},
	)
	slots, err := topo.Slots()
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	want := []Slot{
		{Host: "hostA", Processor: 0, Tagged: true},
		{Host: "hostA", Processor: 1, Tagged: true},
		{Host: "hostB", Processor: 0, Tagged: true},
	}
	if len(slots) != len(want) {
		t.Fatalf("len(slots) = %d, want %d", len(slots), len(want))
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot[%d] = %+v, want %+v", i, slots[i], want[i])
		}
	}
	if topo.Size() != 3 {
		t.Errorf("Size() = %d, want 3", topo.Size())
	}
}

func TestTopologyInvalid(t *testing.T) {
	tests := []struct {
		name string
		topo Topology
	}{
		{"zero", Topology{}},
		{"negative", Workers(-2)},
		{"hosts without processors", Hosts(Host{Name: "a"})},
		{"empty host name", Hosts(Host{Processors: []int{0}})},
		{"both", Topology{Count: 2, Hosts: []Host{{Name: "a", Processors: []int{0}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.topo.Slots()
			if !errors.Is(err, ErrInvalidTopology) {
				t.Errorf("Slots() error = %v, want ErrInvalidTopology", err)
			}
			if tt.topo.Size() != 0 {
				t.Errorf("Size() = %d, want 0", tt.topo.Size())
			}
		})
	}
}

func TestParameterSetClone(t *testing.T) {
	ps, err := NewParameterSet([]string{"a", "b"}, []float64{1, 2})
	if err != nil {
		t.Fatalf("NewParameterSet: %v", err)
	}
	c := ps.Clone()
	c.Values[0] = 99
	if ps.Values[0] != 1 {
		t.Errorf("source mutated through clone: %v", ps.Values)
	}
	if v, ok := ps.Value("b"); !ok || v != 2 {
		t.Errorf("Value(b) = %v, %v; want 2, true", v, ok)
	}
	if _, ok := ps.Value("c"); ok {
		t.Error("Value(c) reported present")
	}
	if ps.Sum() != 3 {
		t.Errorf("Sum() = %v, want 3", ps.Sum())
	}
}

func TestParameterSetsMismatch(t *testing.T) {
	_, err := ParameterSets([]string{"a", "b"}, [][]float64{{1, 2}, {3}})
	if err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestSentinel(t *testing.T) {
	if !Sentinel().IsSentinel() {
		t.Error("Sentinel().IsSentinel() = false")
	}
	if (WorkItem{Position: 0}).IsSentinel() {
		t.Error("position 0 treated as sentinel")
	}
}

func TestFailureBlock(t *testing.T) {
	f := Failure{Index: "7", Detail: "boom\nstack"}
	block := f.Block()
	lines := strings.Split(block, "\n")
	rule := strings.Repeat("-", RuleWidth)
	if lines[0] != rule || lines[len(lines)-1] != rule {
		t.Errorf("block not delimited by rule lines:\n%s", block)
	}
	if lines[1] != "Exception in job 7:" {
		t.Errorf("header line = %q", lines[1])
	}
	if f.Error() != "sample 7: boom" {
		t.Errorf("Error() = %q", f.Error())
	}
}

func TestResultMatrixMissing(t *testing.T) {
	m := NewResultMatrix(3, 2)
	m[1] = []float64{1, 2}
	got := m.MissingRows()
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("MissingRows() = %v, want [0 2]", got)
	}
	if !math.IsNaN(m[0][1]) {
		t.Errorf("m[0][1] = %v, want NaN", m[0][1])
	}
	if m.Width() != 2 {
		t.Errorf("Width() = %d, want 2", m.Width())
	}
}

func TestDefaultIndices(t *testing.T) {
	got := DefaultIndices(3, 1)
	want := []SampleIndex{"1", "2", "3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultObsNames(t *testing.T) {
	got := DefaultObsNames(3)
	if strings.Join(got, ",") != "obs1,obs2,obs3" {
		t.Errorf("DefaultObsNames(3) = %v", got)
	}
	if len(DefaultObsNames(0)) != 0 {
		t.Error("DefaultObsNames(0) not empty")
	}
}

func TestSampleIndexValidate(t *testing.T) {
	for _, idx := range []SampleIndex{"1", "lo", "run-7", "x.2"} {
		if err := idx.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", idx, err)
		}
	}
	for _, idx := range []SampleIndex{"", ".", "..", "1/.", "/../escaped", `a\b`, "a b", "tab\t"} {
		if err := idx.Validate(); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidIndex", idx, err)
		}
	}
}
