package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if id1.Compare(id2) >= 0 {
		t.Error("IDs from one generator should be strictly increasing")
	}
}

func TestNewInstanceID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	inst := NewInstanceID()

	if !strings.HasPrefix(inst.String(), "inst_") {
		t.Fatalf("ID should start with 'inst_', got: %s", inst)
	}

	created, err := inst.Time()
	if err != nil {
		t.Fatalf("Time() failed: %v", err)
	}
	if created.Before(before) || created.After(time.Now().Add(time.Second)) {
		t.Errorf("unexpected creation time %v", created)
	}
}

func TestInstanceIDTimeRejectsForeignIDs(t *testing.T) {
	tests := []InstanceID{"", "app_01ARZ3NDEKTSV4RRFFQ69G5FAV", "inst_not-a-ulid"}
	for _, tt := range tests {
		if _, err := tt.Time(); err == nil {
			t.Errorf("Time(%q) should fail", tt)
		}
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[InstanceID]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				inst := NewInstanceID()
				mu.Lock()
				seen[inst] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}

func TestTraceAndSpanIDs(t *testing.T) {
	trace := NewTraceID()
	if !strings.HasPrefix(trace, TracePrefix+"_") {
		t.Errorf("trace ID should start with %q, got: %s", TracePrefix+"_", trace)
	}
	if span := NewSpanID(); !strings.HasPrefix(span, SpanPrefix+"_") {
		t.Errorf("span ID should start with %q, got: %s", SpanPrefix+"_", span)
	}
	if NewTraceID() == trace {
		t.Error("trace IDs should be unique")
	}
}
