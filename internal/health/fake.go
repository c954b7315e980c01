package health

import (
	"context"
	"sync"
)

// FakeProvider is a scriptable Provider for tests. It is safe for concurrent
// use.
type FakeProvider struct {
	mu sync.Mutex

	// Grant is the status returned by RequestAuthorization.
	Grant AuthStatus
	// RequestError, SubscribeError and LatestError are returned when set.
	RequestError   error
	SubscribeError error
	LatestError    error
	// LatestPoint is returned by Latest.
	LatestPoint *Point

	status      AuthStatus
	subscribers map[int]func([]Point)
	nextID      int
	requests    int
}

// NewFakeProvider creates a provider that grants grant on request.
func NewFakeProvider(grant AuthStatus) *FakeProvider {
	return &FakeProvider{Grant: grant, subscribers: make(map[int]func([]Point))}
}

func (f *FakeProvider) RequestAuthorization(ctx context.Context) (AuthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.RequestError != nil {
		return f.status, f.RequestError
	}
	f.status = f.Grant
	return f.status, nil
}

func (f *FakeProvider) AuthorizationStatus() AuthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *FakeProvider) Subscribe(ctx context.Context, fn func([]Point)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return nil, f.SubscribeError
	}
	f.nextID++
	id := f.nextID
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}, nil
}

func (f *FakeProvider) Latest(ctx context.Context) (Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LatestError != nil {
		return Point{}, f.LatestError
	}
	if f.LatestPoint == nil {
		return Point{}, ErrNoData
	}
	return *f.LatestPoint, nil
}

// Push delivers a batch to every subscriber.
func (f *FakeProvider) Push(points ...Point) {
	f.mu.Lock()
	subs := make([]func([]Point), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(points)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *FakeProvider) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Requests returns how many times authorization was requested.
func (f *FakeProvider) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}
