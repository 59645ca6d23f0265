package updater

import (
	"context"
	"sort"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"boardsync/storage"
)

// fakeStore keeps rows in memory with the same conflict semantics as the
// table service: inserts 409 on existing keys, deletes and updates 404 on
// missing ones.
type fakeStore struct {
	mu    sync.Mutex
	lists map[string]storage.ListEntity
	tasks map[string]storage.TaskEntity

	failGets bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lists: make(map[string]storage.ListEntity),
		tasks: make(map[string]storage.TaskEntity),
	}
}

func (f *fakeStore) GetList(ctx context.Context, id string) (*storage.ListEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets {
		return nil, &azcore.ResponseError{StatusCode: 500}
	}
	ent, ok := f.lists[id]
	if !ok {
		return nil, nil
	}
	return &ent, nil
}

func (f *fakeStore) InsertList(ctx context.Context, ent storage.ListEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[ent.RowKey]; ok {
		return &azcore.ResponseError{StatusCode: 409, ErrorCode: "EntityAlreadyExists"}
	}
	f.lists[ent.RowKey] = ent
	return nil
}

func (f *fakeStore) UpdateList(ctx context.Context, upd storage.ListUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, ok := f.lists[upd.RowKey]
	if !ok {
		return &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	if upd.Title != nil {
		ent.Title = *upd.Title
	}
	if upd.Position != nil {
		ent.Position = *upd.Position
	}
	if upd.ChangedAt != nil {
		ent.ChangedAt = *upd.ChangedAt
	}
	f.lists[upd.RowKey] = ent
	return nil
}

func (f *fakeStore) DeleteList(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[id]; !ok {
		return &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	delete(f.lists, id)
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*storage.TaskEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets {
		return nil, &azcore.ResponseError{StatusCode: 500}
	}
	ent, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &ent, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, ent storage.TaskEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[ent.RowKey]; ok {
		return &azcore.ResponseError{StatusCode: 409, ErrorCode: "EntityAlreadyExists"}
	}
	f.tasks[ent.RowKey] = ent
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, upd storage.TaskUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, ok := f.tasks[upd.RowKey]
	if !ok {
		return &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	if upd.Content != nil {
		ent.Content = *upd.Content
	}
	if upd.ListID != nil {
		ent.ListID = *upd.ListID
	}
	if upd.Position != nil {
		ent.Position = *upd.Position
	}
	if upd.ChangedAt != nil {
		ent.ChangedAt = *upd.ChangedAt
	}
	f.tasks[upd.RowKey] = ent
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) TasksByList(ctx context.Context, listID string) ([]storage.TaskEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.TaskEntity
	for _, ent := range f.tasks {
		if ent.ListID == listID {
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}
