package external

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// Mock management context for testing
type mockContext struct {
	props map[string]string
}

func (m *mockContext) Logger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func (m *mockContext) Property(key string) (string, bool) {
	v, ok := m.props[key]
	return v, ok
}

// Mock provider for testing
type mockProvider struct {
	name   string
	values map[string]string
	err    error
	closed bool
	calls  int
	mu     sync.Mutex
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Get(key string) (string, bool, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingObserver) ObserveLookup(provider, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, provider+":"+outcome)
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestRegistry_Resolve(t *testing.T) {
	reg := newTestRegistry()
	observer := &countingObserver{}
	reg.SetObserver(observer)
	reg.Register("myprovider", &mockProvider{name: "myprovider", values: map[string]string{"mykey": "myval", "empty": ""}})

	tests := []struct {
		name      string
		provider  string
		key       string
		wantValue string
		wantOK    bool
		wantErr   func(error) bool
	}{
		{name: "known key", provider: "myprovider", key: "mykey", wantValue: "myval", wantOK: true},
		{name: "empty value is present", provider: "myprovider", key: "empty", wantValue: "", wantOK: true},
		{name: "missing key", provider: "myprovider", key: "missingKey", wantOK: false},
		{name: "missing provider", provider: "missingProvider", key: "k", wantErr: engine.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok, err := reg.Resolve(tt.provider, tt.key)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("Resolve() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if value != tt.wantValue || ok != tt.wantOK {
				t.Errorf("Resolve() = (%q, %v), want (%q, %v)", value, ok, tt.wantValue, tt.wantOK)
			}
		})
	}

	want := []string{"myprovider:hit", "myprovider:hit", "myprovider:miss", "missingProvider:no_provider"}
	if fmt.Sprint(observer.outcomes) != fmt.Sprint(want) {
		t.Errorf("observed %v, want %v", observer.outcomes, want)
	}
}

func TestRegistry_ProviderError(t *testing.T) {
	reg := newTestRegistry()
	boom := errors.New("backend down")
	reg.Register("p", &mockProvider{name: "p", err: boom})

	_, _, err := reg.Resolve("p", "k")
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve() error = %v, want wrapped %v", err, boom)
	}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	reg := newTestRegistry()
	first := &mockProvider{name: "p", values: map[string]string{"k": "first"}}
	second := &mockProvider{name: "p", values: map[string]string{"k": "second"}}

	reg.Register("p", first)
	reg.Register("p", second)

	v, _, err := reg.Resolve("p", "k")
	if err != nil || v != "second" {
		t.Fatalf("Resolve() = %q, %v; want second", v, err)
	}
	if !first.closed {
		t.Error("replaced provider should be closed")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "p" {
		t.Errorf("Names() = %v", names)
	}
}

// blockingProvider holds Get open until release is closed and fails any
// lookup that outlives Close.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	closed bool
}

func (b *blockingProvider) Name() string { return "slow" }

func (b *blockingProvider) Get(key string) (string, bool, error) {
	close(b.entered)
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false, errors.New("provider used after close")
	}
	return "value", true, nil
}

func (b *blockingProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *blockingProvider) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func TestRegistry_ReplaceWaitsForInflightLookups(t *testing.T) {
	reg := newTestRegistry()
	slow := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	reg.Register("p", slow)

	type lookup struct {
		value string
		err   error
	}
	lookupDone := make(chan lookup, 1)
	go func() {
		v, _, err := reg.Resolve("p", "k")
		lookupDone <- lookup{v, err}
	}()
	<-slow.entered

	registered := make(chan struct{})
	go func() {
		reg.Register("p", &mockProvider{name: "p", values: map[string]string{"k": "new"}})
		close(registered)
	}()

	// The replacement is visible while the old lookup is still running.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if v, _, _ := reg.Resolve("p", "k"); v == "new" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("replacement provider never became visible")
		}
		time.Sleep(time.Millisecond)
	}
	if slow.isClosed() {
		t.Fatal("replaced provider closed while a lookup was in flight")
	}

	close(slow.release)
	got := <-lookupDone
	if got.err != nil || got.value != "value" {
		t.Errorf("in-flight Resolve() = %q, %v; want value", got.value, got.err)
	}

	<-registered
	if !slow.isClosed() {
		t.Error("replaced provider should be closed after the lookup returns")
	}
}

func TestRegistry_Independent(t *testing.T) {
	a, b := newTestRegistry(), newTestRegistry()
	a.Register("p", &mockProvider{name: "p"})

	if _, ok := b.Get("p"); ok {
		t.Error("registries share state")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			reg.Register("p", &mockProvider{name: "p", values: map[string]string{"k": fmt.Sprint(i)}})
		}(i)
		go func() {
			defer wg.Done()
			if _, _, err := reg.Resolve("p", "k"); err != nil && !engine.IsNotFound(err) {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if _, ok, err := reg.Resolve("p", "k"); err != nil || !ok {
		t.Errorf("Resolve() after writes = %v, %v", ok, err)
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := newTestRegistry()
	p := &mockProvider{name: "p"}
	reg.Register("p", p)

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.closed {
		t.Error("provider not closed")
	}
	if _, _, err := reg.Resolve("p", "k"); !engine.IsNotFound(err) {
		t.Errorf("expected registry to be empty after Close, got %v", err)
	}
}

func TestRegistry_NotFoundMessage(t *testing.T) {
	_, _, err := newTestRegistry().Resolve("vault", "k")
	if !strings.Contains(err.Error(), `"vault"`) {
		t.Errorf("message %q does not name the provider", err.Error())
	}
}
