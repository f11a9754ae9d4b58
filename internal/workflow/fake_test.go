package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/erazemk/izposoja/internal/model"
)

// fakeStore is a non-transactional Store, so the engine falls back to
// compensation. Hooks inject failures.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]model.Request
	items    map[int64]model.Item
	seq      map[int]int

	statusErr error
	stockErr  func(id int64, from, to int) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests: make(map[int64]model.Request),
		items:    make(map[int64]model.Item),
		seq:      make(map[int]int),
	}
}

func (f *fakeStore) addItem(it model.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it.Status == "" {
		it.Status = model.ItemStatusAvailable
	}
	f.items[it.ID] = it
}

func (f *fakeStore) addRequest(r model.Request) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	r.Items = append([]model.LineItem(nil), r.Items...)
	f.requests[r.ID] = r
	return r.ID
}

func (f *fakeStore) item(id int64) model.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

func (f *fakeStore) request(id int64) model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

func (f *fakeStore) Request(_ context.Context, id int64) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("request: %w", model.ErrNotFound)
	}
	r.Items = append([]model.LineItem(nil), r.Items...)
	return &r, nil
}

func (f *fakeStore) CreateRequest(_ context.Context, req *model.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = f.nextID
	cp := *req
	cp.Items = append([]model.LineItem(nil), req.Items...)
	f.requests[req.ID] = cp
	return nil
}

func (f *fakeStore) UpdateDraft(_ context.Context, req *model.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.requests[req.ID]
	if !ok || cur.Status != model.StatusDraft {
		return model.ErrStale
	}
	cp := *req
	cp.Items = append([]model.LineItem(nil), req.Items...)
	f.requests[req.ID] = cp
	return nil
}

func (f *fakeStore) UpdateRequestStatus(_ context.Context, req *model.Request, from model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	cur, ok := f.requests[req.ID]
	if !ok || cur.Status != from {
		return model.ErrStale
	}
	cp := *req
	cp.Items = append([]model.LineItem(nil), req.Items...)
	f.requests[req.ID] = cp
	return nil
}

func (f *fakeStore) Item(_ context.Context, id int64) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("item: %w", model.ErrNotFound)
	}
	return &it, nil
}

func (f *fakeStore) UpdateItemStock(_ context.Context, id int64, from, to int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stockErr != nil {
		if err := f.stockErr(id, from, to); err != nil {
			return err
		}
	}
	it, ok := f.items[id]
	if !ok || it.AvailableQuantity != from {
		return model.ErrStale
	}
	it.AvailableQuantity = to
	it.Status = status
	f.items[id] = it
	return nil
}

func (f *fakeStore) NextLetterSequence(_ context.Context, year int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[year]++
	return f.seq[year], nil
}
