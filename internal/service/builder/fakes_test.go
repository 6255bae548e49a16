package builder

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/repository/history"
	"github.com/oshokin/wrs-builder/internal/service/discovery"
	"github.com/oshokin/wrs-builder/internal/service/merge"
)

// fakeMounter creates the component store on mount and records unmounts.
type fakeMounter struct {
	failFor  map[string]error
	mounts   int
	unmounts int
}

func (f *fakeMounter) Mount(_ context.Context, _ string, _ int, mountPath string) error {
	if err := f.failFor[mountPath]; err != nil {
		return err
	}

	f.mounts++

	return os.MkdirAll(filepath.Join(mountPath, filepath.FromSlash(servicing.WinSxSPath)), 0o755)
}

func (f *fakeMounter) Unmount(_ context.Context, mountPath string) error {
	f.unmounts++

	return os.RemoveAll(mountPath)
}

// fakeInstaller records installed packages and fails the ones listed in errs.
type fakeInstaller struct {
	errs      map[string]error
	installed []string
	onInstall func(packagePath, mountPath string) error
}

func (f *fakeInstaller) Install(_ context.Context, packagePath, mountPath string) error {
	f.installed = append(f.installed, packagePath)

	if err := f.errs[packagePath]; err != nil {
		return err
	}

	if f.onInstall != nil {
		return f.onInstall(packagePath, mountPath)
	}

	return nil
}

type mergeCall struct {
	src string
	dst string
}

// fakeMerger returns the queued results in order and succeeds once they run out.
type fakeMerger struct {
	results []merge.Result
	calls   []mergeCall
}

func (f *fakeMerger) Merge(_ context.Context, src, dst string) merge.Result {
	f.calls = append(f.calls, mergeCall{src: src, dst: dst})

	if len(f.results) == 0 {
		return merge.Classify(1)
	}

	result := f.results[0]
	f.results = f.results[1:]

	return result
}

// fakeDiscoverer registers preset entries that the history does not know yet.
type fakeDiscoverer struct {
	entries []servicing.UpdateEntry
	calls   int
}

func (f *fakeDiscoverer) Discover(
	ctx context.Context,
	_ string,
	ledger *servicing.History,
	saver discovery.HistorySaver,
) (*discovery.Report, error) {
	f.calls++

	report := &discovery.Report{Failed: make(map[string]error)}

	for _, entry := range f.entries {
		if ledger.HasEntry(entry.ID) {
			continue
		}

		if err := ledger.Append(entry); err != nil {
			return nil, err
		}

		if err := saver.Save(ctx, ledger); err != nil {
			return report, err
		}

		report.Added = append(report.Added, entry)
	}

	return report, nil
}

// memoryRepository keeps the last persisted history in memory.
type memoryRepository struct {
	mu        sync.Mutex
	persisted *servicing.History
	loadErr   error
	saveErr   error
	saves     int
}

func newMemoryRepository(entries ...servicing.UpdateEntry) *memoryRepository {
	persisted := servicing.NewHistory()
	for _, entry := range entries {
		if err := persisted.Append(entry); err != nil {
			panic(err)
		}
	}

	return &memoryRepository{persisted: persisted}
}

func (m *memoryRepository) Load(context.Context) (*servicing.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}

	return cloneHistory(m.persisted), nil
}

func (m *memoryRepository) Save(_ context.Context, ledger *servicing.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	m.saves++
	m.persisted = cloneHistory(ledger)

	return nil
}

// entry returns the persisted state of id.
func (m *memoryRepository) entry(id string) (servicing.UpdateEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.persisted.Entry(id)
}

func cloneHistory(ledger *servicing.History) *servicing.History {
	clone := servicing.NewHistory()
	for _, entry := range ledger.Entries() {
		_ = clone.Append(entry)
	}

	return clone
}

func staticRepository(repo history.Repository) RepositoryFactory {
	return func(string) history.Repository {
		return repo
	}
}
