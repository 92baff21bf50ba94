package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/object"
)

type fakeLoader struct {
	calls int32
	delay time.Duration
	fail  bool
}

func (l *fakeLoader) LoadRecord(ctx context.Context, id int64) (*catalog.Catalog, object.Category, *object.Class, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.fail {
		return nil, nil, nil, errFake
	}
	return catalog.New(catalog.Entry{Key: "name", Value: "Ann"}), nil, nil, nil
}

var errFake = fakeErr{}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake load failure" }

func TestGetObjectReturnsStubWhenUncached(t *testing.T) {
	r := New(nil, time.Minute)
	o := r.GetObject(5)
	if o.State() != object.StateStub {
		t.Fatalf("expected stub, got %v", o.State())
	}
}

func TestGetLoadedFetchesAndCaches(t *testing.T) {
	loader := &fakeLoader{}
	r := New(loader, time.Minute)
	o, err := r.GetLoaded(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if o.State() != object.StateLoaded {
		t.Fatalf("expected loaded, got %v", o.State())
	}
	if atomic.LoadInt32(&loader.calls) != 1 {
		t.Fatalf("expected 1 load call, got %d", loader.calls)
	}
	// second call should hit the cache, not the loader.
	if _, err := r.GetLoaded(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&loader.calls) != 1 {
		t.Fatalf("expected load not repeated, got %d calls", loader.calls)
	}
}

func TestConcurrentGetLoadedSharesInFlight(t *testing.T) {
	loader := &fakeLoader{delay: 20 * time.Millisecond}
	r := New(loader, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.GetLoaded(context.Background(), 9); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&loader.calls) != 1 {
		t.Fatalf("expected exactly 1 load call for concurrent callers, got %d", loader.calls)
	}
}

func TestLoadFailureRevertsToStub(t *testing.T) {
	loader := &fakeLoader{fail: true}
	r := New(loader, time.Minute)
	o, err := r.GetLoaded(context.Background(), 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if o.State() != object.StateStub {
		t.Fatalf("expected stub after failed load, got %v", o.State())
	}
}

func TestLazyTTLSweepEvictsOnObservation(t *testing.T) {
	loader := &fakeLoader{}
	r := New(loader, time.Millisecond)
	if _, err := r.GetLoaded(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	old := timeNow
	timeNow = func() time.Time { return old().Add(time.Hour) }
	defer func() { timeNow = old }()

	o := r.GetObject(2)
	if o.State() != object.StateStub {
		t.Fatalf("expected expired entry swept to a fresh stub, got %v", o.State())
	}
}

func TestNextProvisionalIDIsNegativeAndDecreasing(t *testing.T) {
	r := New(nil, time.Minute)
	a := r.NextProvisionalID()
	b := r.NextProvisionalID()
	if a >= 0 || b >= 0 || b >= a {
		t.Fatalf("expected strictly decreasing negative ids, got %d then %d", a, b)
	}
}
