package comconnector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

func TestParseCompatibilityMode(t *testing.T) {
	tests := []struct {
		mode string
		want string
		ok   bool
	}{
		{"Version8_3_10", "8.3.10", true},
		{"Версия8_3_12", "8.3.12", true},
		{" Version8_2_19 ", "8.2.19", true},
		{"DontUse", "", false},
		{"НеИспользовать", "", false},
		{"", "", false},
		{"Version8__3", "", false},
		{"Version8_3_x", "", false},
		{"8.3.10", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseCompatibilityMode(tt.mode)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCompatibilityMode(%q) = %q, %v; want %q, %v", tt.mode, got, ok, tt.want, tt.ok)
		}
	}
}

func TestConnectionStrings(t *testing.T) {
	if got := FileConnection(`C:\bases\acc`); got != `File="C:\bases\acc";` {
		t.Errorf("FileConnection() = %s", got)
	}
	if got := ServerConnection("app01", "acc"); got != `Srvr="app01";Ref="acc";` {
		t.Errorf("ServerConnection() = %s", got)
	}
	got := WithCredentials(`File="C:\ib"`, "Админ", `pa"ss`)
	if want := `File="C:\ib";Usr="Админ";Pwd="pa""ss";`; got != want {
		t.Errorf("WithCredentials() = %s, want %s", got, want)
	}
	if got := WithCredentials(`File="C:\ib";`, "", ""); got != `File="C:\ib";` {
		t.Errorf("WithCredentials() without credentials = %s", got)
	}
}

func TestOpen_RequiresConnection(t *testing.T) {
	_, err := New().Open(context.Background(), appext.Target{Name: "ib"})
	if !errors.Is(err, appext.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestWorker_RunsCallsSerially(t *testing.T) {
	var setUp, tornDown bool
	w, err := startWorker(func() error { setUp = true; return nil }, func() { tornDown = true })
	if err != nil {
		t.Fatalf("startWorker failed: %v", err)
	}

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.do(context.Background(), func() error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("calls overlapped: %d at once", maxSeen)
	}

	closed := false
	w.close(func() { closed = true })
	w.close(func() { t.Error("second close should be a no-op") })

	if !setUp || !tornDown || !closed {
		t.Errorf("setUp=%v tornDown=%v closed=%v", setUp, tornDown, closed)
	}
	if err := w.do(context.Background(), func() error { return nil }); !errors.Is(err, appext.ErrClosed) {
		t.Errorf("do after close: expected ErrClosed, got %v", err)
	}
}

func TestWorker_InitFailure(t *testing.T) {
	boom := errors.New("no COM")
	torn := false
	if _, err := startWorker(func() error { return boom }, func() { torn = true }); !errors.Is(err, boom) {
		t.Fatalf("expected init error, got %v", err)
	}
	if torn {
		t.Error("teardown must not run when init fails")
	}
}

func TestWorker_ReturnsCallError(t *testing.T) {
	w, err := startWorker(func() error { return nil }, func() {})
	if err != nil {
		t.Fatalf("startWorker failed: %v", err)
	}
	defer w.close(func() {})

	boom := errors.New("call failed")
	if err := w.do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected call error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Either the call ran or the cancelled wait won; both are valid.
	if err := w.do(ctx, func() error { return nil }); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error %v", err)
	}
}

type fakeObject struct{ refs int32 }

func (o *fakeObject) Release() int32 {
	o.refs--
	return o.refs
}

func TestBinding_ReleasesTemporariesPerCall(t *testing.T) {
	w, err := startWorker(func() error { return nil }, func() {})
	if err != nil {
		t.Fatalf("startWorker failed: %v", err)
	}
	b := &binding{w: w, log: zap.NewNop()}

	var objs []*fakeObject
	track := func(n int) {
		for i := 0; i < n; i++ {
			o := &fakeObject{refs: 1}
			objs = append(objs, o)
			b.scratch = append(b.scratch, o)
		}
	}

	for i := 0; i < 100; i++ {
		if err := b.run(context.Background(), func() error { track(3); return nil }); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	}
	boom := errors.New("host failure")
	if err := b.run(context.Background(), func() error { track(2); return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected call error, got %v", err)
	}

	if len(b.scratch) != 0 {
		t.Errorf("%d temporaries left after the calls returned", len(b.scratch))
	}
	for i, o := range objs {
		if o.refs != 0 {
			t.Fatalf("object %d has %d references left", i, o.refs)
		}
	}

	pinned := &fakeObject{refs: 1}
	b.pinned = map[releaser]struct{}{pinned: {}}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if pinned.refs != 0 {
		t.Errorf("Close should release pinned objects, refs = %d", pinned.refs)
	}
}
