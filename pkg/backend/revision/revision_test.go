package revision

import (
	"sync"
	"testing"
)

func TestRevisioner(t *testing.T) {
	r := NewRevisioner(1)

	first := r.Increment()
	if first != 2 {
		t.Fatalf("expected first increment to be 2 got %v", first)
	}

	added := int64(0)
	current := int64(0)
	for i := 1; i < 100; i++ {
		added = added + 1
		current = r.Increment()
	}

	if current != (added + first) {
		t.Fatalf("expected counter to be %v got %v", (added + first), current)
	}

	latest := r.Current()
	if latest != current {
		t.Fatalf("current rev:%v got:%v", current, latest)
	}
}

func TestRevisionerConcurrent(t *testing.T) {
	r := NewRevisioner(0)
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Increment()
			}
		}()
	}
	wg.Wait()

	if r.Current() != 1000 {
		t.Fatalf("expected 1000 got %v", r.Current())
	}
}
