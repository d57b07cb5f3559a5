package store

import (
	"testing"

	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

func TestPushCountAndAt(t *testing.T) {
	s := New()
	batch := s.PushCount(3)
	if len(batch) != 3 || s.Len() != 3 {
		t.Fatalf("PushCount(3): batch %d store %d", len(batch), s.Len())
	}
	batch[1].State[0] = 0.5
	if s.At(1).State[0] != 0.5 {
		t.Fatal("batch slice does not alias the store")
	}

	more := s.PushCount(2)
	if s.Len() != 5 || len(more) != 2 {
		t.Fatalf("second PushCount: store %d batch %d", s.Len(), len(more))
	}
	if s.At(1).State[0] != 0.5 {
		t.Fatal("existing particle clobbered by growth")
	}
}

func TestReplace(t *testing.T) {
	s := New()
	s.PushCount(4)
	s.Replace([]model.Particle{{State: [6]float64{0.25}}})
	if s.Len() != 1 || s.At(0).State[0] != 0.25 {
		t.Fatalf("Replace: len %d first %v", s.Len(), s.At(0).State)
	}
}
