// Package sample provides a concrete implementation of the replay core's
// payload interface. The core (internal/ring, internal/replay) treats
// elements as an opaque, cheaply-copyable type behind replay.Payload; this
// package is that type's reference instance, modeled on the teacher's
// storage.Transition.
package sample

import (
	"time"

	"github.com/google/uuid"
)

// Transition is one step of experience: a state/action/reward/observation
// record plus bookkeeping fields used only for correlation in logs and
// metrics. The replay core never inspects these fields; it only copies the
// struct by value. Priorities are passed to the replay layer alongside it.
type Transition struct {
	ID              string
	EnvID           string
	EpisodeID       string
	StepNumber      uint32
	State           []byte
	Action          []byte
	NextState       []byte
	Observation     []byte
	NextObservation []byte
	Reward          float32
	Done            bool
	Timestamp       time.Time
	Metadata        map[string]string
}

// NewTransition assigns an ID and timestamp if either is unset, the way
// the teacher's Store does at admission time.
func NewTransition(t Transition) Transition {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	return t
}

// Batch is the packed aggregate form of a slice of Transitions: parallel
// slices rather than a slice of pointers, matching the wire shape of the
// teacher's StoreBatchRequest without depending on its protobuf stubs
// (see SPEC_FULL.md §9.5 for why protobuf itself stays unwired).
type Batch struct {
	IDs              []string
	EnvIDs           []string
	EpisodeIDs       []string
	StepNumbers      []uint32
	States           [][]byte
	Actions          [][]byte
	NextStates       [][]byte
	Observations     [][]byte
	NextObservations [][]byte
	Rewards          []float32
	Dones            []bool
	Timestamps       []time.Time
	Metadata         []map[string]string
}

// Packer implements replay.Payload[Transition, Batch] by packing/unpacking
// into a Batch.
type Packer struct{}

// Pack assembles items into one Batch of parallel slices.
func (Packer) Pack(items []Transition) Batch {
	b := Batch{
		IDs:              make([]string, len(items)),
		EnvIDs:           make([]string, len(items)),
		EpisodeIDs:       make([]string, len(items)),
		StepNumbers:      make([]uint32, len(items)),
		States:           make([][]byte, len(items)),
		Actions:          make([][]byte, len(items)),
		NextStates:       make([][]byte, len(items)),
		Observations:     make([][]byte, len(items)),
		NextObservations: make([][]byte, len(items)),
		Rewards:          make([]float32, len(items)),
		Dones:            make([]bool, len(items)),
		Timestamps:       make([]time.Time, len(items)),
		Metadata:         make([]map[string]string, len(items)),
	}
	for i, t := range items {
		b.IDs[i] = t.ID
		b.EnvIDs[i] = t.EnvID
		b.EpisodeIDs[i] = t.EpisodeID
		b.StepNumbers[i] = t.StepNumber
		b.States[i] = t.State
		b.Actions[i] = t.Action
		b.NextStates[i] = t.NextState
		b.Observations[i] = t.Observation
		b.NextObservations[i] = t.NextObservation
		b.Rewards[i] = t.Reward
		b.Dones[i] = t.Done
		b.Timestamps[i] = t.Timestamp
		b.Metadata[i] = t.Metadata
	}
	return b
}

// Unpack reverses Pack, returning one Transition per entry in batch.
func (Packer) Unpack(batch Batch) []Transition {
	items := make([]Transition, len(batch.IDs))
	for i := range batch.IDs {
		items[i] = Transition{
			ID:              batch.IDs[i],
			EnvID:           batch.EnvIDs[i],
			EpisodeID:       batch.EpisodeIDs[i],
			StepNumber:      batch.StepNumbers[i],
			State:           batch.States[i],
			Action:          batch.Actions[i],
			NextState:       batch.NextStates[i],
			Observation:     batch.Observations[i],
			NextObservation: batch.NextObservations[i],
			Reward:          batch.Rewards[i],
			Done:            batch.Dones[i],
			Timestamp:       batch.Timestamps[i],
			Metadata:        batch.Metadata[i],
		}
	}
	return items
}
