package gateway

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"hpcgateway/internal/remote"
)

// fakeRemote is an in-memory facade. Failures are injected per operation.
type fakeRemote struct {
	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	statuses map[string]string
	nextID   int
	fail     map[string]string

	submits   []string
	cancels   []string
	pollCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		dirs:     map[string]bool{},
		files:    map[string][]byte{},
		statuses: map[string]string{},
		fail:     map[string]string{},
	}
}

func (f *fakeRemote) failOn(op, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = message
}

func (f *fakeRemote) check(op string) error {
	if msg, ok := f.fail[op]; ok {
		return &remote.OperationError{Op: op, Message: msg}
	}
	return nil
}

func (f *fakeRemote) Mkdir(_ context.Context, _, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpMkdir); err != nil {
		return err
	}
	f.dirs[p] = true
	return nil
}

func (f *fakeRemote) ListFiles(_ context.Context, _, p string) ([]remote.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpList); err != nil {
		return nil, err
	}
	if !f.dirs[p] {
		return nil, &remote.OperationError{Op: remote.OpList, Message: "no such directory"}
	}
	var out []remote.FileInfo
	for name, data := range f.files {
		if path.Dir(name) == p {
			out = append(out, remote.FileInfo{Name: path.Base(name), Type: "-", Size: fmt.Sprint(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRemote) Upload(_ context.Context, _, dir, filename string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpUpload); err != nil {
		return err
	}
	f.files[path.Join(dir, filename)] = append([]byte(nil), data...)
	return nil
}

func (f *fakeRemote) Download(_ context.Context, _, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpDownload); err != nil {
		return nil, err
	}
	data, ok := f.files[p]
	if !ok {
		return nil, &remote.OperationError{Op: remote.OpDownload, Message: "no such file"}
	}
	return data, nil
}

func (f *fakeRemote) Delete(_ context.Context, _, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpDelete); err != nil {
		return err
	}
	delete(f.files, p)
	return nil
}

func (f *fakeRemote) Submit(_ context.Context, _, scriptPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpSubmit); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("%05d", f.nextID)
	f.submits = append(f.submits, scriptPath)
	f.statuses[id] = "PENDING"
	return id, nil
}

func (f *fakeRemote) Cancel(_ context.Context, _, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(remote.OpCancel); err != nil {
		return err
	}
	f.cancels = append(f.cancels, jobID)
	f.statuses[jobID] = "CANCELLED"
	return nil
}

func (f *fakeRemote) Poll(_ context.Context, _ string, jobIDs []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if err := f.check(remote.OpPoll); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, id := range jobIDs {
		if s, ok := f.statuses[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}
