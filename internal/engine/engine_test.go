package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/any-hub/unicdn/internal/cache"
	"github.com/any-hub/unicdn/internal/downloader"
	"github.com/any-hub/unicdn/internal/naming"
	"github.com/any-hub/unicdn/internal/remote"
)

func TestInitCreatesRootDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "cache")
	fake := newFakeDownloader()
	e := New(nil)

	if err := e.Init(context.Background(), Config{RootDir: root, VersionFileName: naming.Suffix(naming.DefaultSuffix)}, fake); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root dir should exist: %v", err)
	}
	if !fake.initialized() {
		t.Fatalf("downloader Init should be invoked")
	}
	if e.Downloader() != fake {
		t.Fatalf("engine should keep the bound downloader")
	}

	err := e.Init(context.Background(), Config{RootDir: root, VersionFileName: naming.Suffix(naming.DefaultSuffix)}, newFakeDownloader())
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestOperationsRequireInit(t *testing.T) {
	e := New(nil)
	if _, err := e.UpdateFile(context.Background(), "/files/a"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := e.ReadLocalFile(context.Background(), "/files/a"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if e.Downloader() != nil || e.Root() != "" {
		t.Fatalf("uninitialized engine should expose nothing")
	}
}

func TestInitPropagatesDownloaderError(t *testing.T) {
	fake := newFakeDownloader()
	fake.initErr = errors.New("auth rejected")
	e := New(nil)
	err := e.Init(context.Background(), Config{RootDir: t.TempDir(), VersionFileName: naming.Suffix(naming.DefaultSuffix)}, fake)
	if !errors.Is(err, fake.initErr) {
		t.Fatalf("expected downloader init error, got %v", err)
	}
	if _, err := e.GetLocalVersion(context.Background(), "/a"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("failed init should leave engine uninitialized, got %v", err)
	}
}

func TestNeverWrittenResource(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/files/largefile_version.txt", "1")
	ctx := context.Background()

	upToDate, err := e.IsUpToDate(ctx, "/files/largefile")
	if err != nil {
		t.Fatalf("is up to date failed: %v", err)
	}
	if upToDate {
		t.Fatalf("never written resource cannot be up to date")
	}
	version, err := e.GetLocalVersion(ctx, "/files/largefile")
	if err != nil || version != "" {
		t.Fatalf("expected empty local version, got %q err=%v", version, err)
	}
}

func TestWriteThenRead(t *testing.T) {
	e, _ := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	ctx := context.Background()

	if _, err := e.WriteLocalFile(ctx, "/files/a", []byte("bytes"), "v9"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	result, err := e.ReadLocalFile(ctx, "/files/a")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(result.Bytes) != "bytes" || result.Version != "v9" {
		t.Fatalf("unexpected read result: %s %s", result.Bytes, result.Version)
	}
}

func TestUpdateFileIsIdempotent(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/files/largefile", "content-v1")
	fake.put("/files/largefile_version.txt", "1")
	ctx := context.Background()

	updated, err := e.UpdateFile(ctx, "/files/largefile")
	if err != nil || !updated {
		t.Fatalf("first update should download, got %v err=%v", updated, err)
	}
	updated, err = e.UpdateFile(ctx, "/files/largefile")
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if updated {
		t.Fatalf("second update should be a no-op")
	}
	if n := fake.downloadCount("/files/largefile"); n != 1 {
		t.Fatalf("expected exactly one content download, got %d", n)
	}
}

func TestUpdateFileReplacesStaleVersion(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	ctx := context.Background()

	if _, err := e.WriteLocalFile(ctx, "/files/a", []byte("old"), "1"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	fake.put("/files/a", "new")
	fake.put("/files/a_version.txt", "2")

	upToDate, err := e.IsUpToDate(ctx, "/files/a")
	if err != nil || upToDate {
		t.Fatalf("expected stale resource, got %v err=%v", upToDate, err)
	}

	updated, err := e.UpdateFile(ctx, "/files/a")
	if err != nil || !updated {
		t.Fatalf("expected update, got %v err=%v", updated, err)
	}
	version, err := e.GetLocalVersion(ctx, "/files/a")
	if err != nil || version != "2" {
		t.Fatalf("expected local version 2, got %q err=%v", version, err)
	}
	result, err := e.ReadLocalFile(ctx, "/files/a")
	if err != nil || string(result.Bytes) != "new" {
		t.Fatalf("expected new content, got %v err=%v", result, err)
	}
}

func TestUpdateFileScenario(t *testing.T) {
	root := t.TempDir()
	fake := newFakeDownloader()
	e := New(nil)
	if err := e.Init(context.Background(), Config{RootDir: root, VersionFileName: naming.Stem(naming.DefaultSuffix)}, fake); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	ctx := context.Background()

	if _, err := e.WriteLocalFile(ctx, "/files/a.bin", []byte{1, 2, 3}, "v1"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "files", "a.bin")); err != nil {
		t.Fatalf("content file missing: %v", err)
	}
	marker, err := os.ReadFile(filepath.Join(root, "files", "a_version.txt"))
	if err != nil || string(marker) != "v1" {
		t.Fatalf("marker should contain v1, got %q err=%v", marker, err)
	}

	fake.put("/files/a.bin", string([]byte{9, 8, 7, 6}))
	fake.put("/files/a_version.txt", "v2")

	updated, err := e.UpdateFile(ctx, "/files/a.bin")
	if err != nil || !updated {
		t.Fatalf("expected update, got %v err=%v", updated, err)
	}
	result, err := e.ReadLocalFile(ctx, "/files/a.bin")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if result.Version != "v2" || !bytes.Equal(result.Bytes, []byte{9, 8, 7, 6}) {
		t.Fatalf("unexpected result: %v %q", result.Bytes, result.Version)
	}
}

func TestUpdateFileFromSeparateRemotePath(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/cdn/v1/pack", "remote-pack")
	fake.put("/cdn/v1/pack_version.txt", "7")
	ctx := context.Background()

	updated, err := e.UpdateFileFrom(ctx, "/local/pack", "/cdn/v1/pack")
	if err != nil || !updated {
		t.Fatalf("expected update, got %v err=%v", updated, err)
	}
	upToDate, err := e.IsUpToDateFrom(ctx, "/local/pack", "/cdn/v1/pack")
	if err != nil || !upToDate {
		t.Fatalf("expected up to date, got %v err=%v", upToDate, err)
	}
	result, err := e.ReadLocalFile(ctx, "/local/pack")
	if err != nil || string(result.Bytes) != "remote-pack" || result.Version != "7" {
		t.Fatalf("unexpected local content: %v err=%v", result, err)
	}
}

func TestRemoteFailurePropagates(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	ctx := context.Background()
	if _, err := e.WriteLocalFile(ctx, "/files/a", []byte("keep"), "1"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	fake.setDownloadErr(errors.New("network unreachable"))

	if _, err := e.IsUpToDate(ctx, "/files/a"); err == nil {
		t.Fatalf("remote failure should surface from IsUpToDate")
	}
	_, err := e.UpdateFile(ctx, "/files/a")
	var remoteErr *remote.Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *remote.Error, got %v", err)
	}

	result, err := e.ReadLocalFile(ctx, "/files/a")
	if err != nil || string(result.Bytes) != "keep" {
		t.Fatalf("failed check must not touch local pair: %v err=%v", result, err)
	}
}

func TestUpdateFileFailsWhenContentMissingRemotely(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/files/a_version.txt", "3")

	_, err := e.UpdateFile(context.Background(), "/files/a")
	if !errors.Is(err, downloader.ErrNotFound) {
		t.Fatalf("missing remote content should be a hard error, got %v", err)
	}
}

func TestUpdateFileRejectsMissingRemoteVersion(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/files/a", "content")

	updated, err := e.UpdateFile(context.Background(), "/files/a")
	if !errors.Is(err, ErrRemoteVersionMissing) {
		t.Fatalf("expected ErrRemoteVersionMissing, got %v", err)
	}
	if updated {
		t.Fatalf("failed update must report false")
	}
	version, _ := e.GetLocalVersion(context.Background(), "/files/a")
	if version != "" {
		t.Fatalf("no pair should be written with an empty version, got %q", version)
	}
}

func TestSelfHealThroughEngine(t *testing.T) {
	e, _ := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	ctx := context.Background()
	if _, err := e.WriteLocalFile(ctx, "/files/a", []byte("x"), "1"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	paths, err := e.Paths(ctx, "/files/a")
	if err != nil {
		t.Fatalf("paths failed: %v", err)
	}
	if err := os.Remove(paths.Version); err != nil {
		t.Fatalf("remove marker failed: %v", err)
	}

	if _, err := e.ReadLocalFile(ctx, "/files/a"); !errors.Is(err, cache.ErrNotIntact) {
		t.Fatalf("expected ErrNotIntact, got %v", err)
	}
	if _, err := os.Stat(paths.Content); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("orphaned content should be removed")
	}
}

func TestDeleteLocalFileIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	ctx := context.Background()

	deleted, err := e.DeleteLocalFile(ctx, "/files/none")
	if err != nil || deleted {
		t.Fatalf("deleting absent resource should return false, got %v err=%v", deleted, err)
	}
	if _, err := e.WriteLocalFile(ctx, "/files/a", []byte("x"), "1"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	deleted, err = e.DeleteLocalFile(ctx, "/files/a")
	if err != nil || !deleted {
		t.Fatalf("expected deleted=true, got %v err=%v", deleted, err)
	}
}

func TestConcurrentUpdatesAreSerialised(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/files/shared", "payload")
	fake.put("/files/shared_version.txt", "1")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updates int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updated, err := e.UpdateFile(context.Background(), "files/shared")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if updated {
				updates++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if updates != 1 {
		t.Fatalf("expected exactly one update, got %d", updates)
	}
	if n := fake.downloadCount("/files/shared"); n != 1 {
		t.Fatalf("expected one content download, got %d", n)
	}
}

func TestSetLocalVersion(t *testing.T) {
	e, fake := newTestEngine(t, naming.Suffix(naming.DefaultSuffix))
	fake.put("/files/a_version.txt", "5")
	ctx := context.Background()

	if _, err := e.WriteLocalFile(ctx, "/files/a", []byte("x"), "4"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := e.SetLocalVersion(ctx, "/files/a", "5"); err != nil {
		t.Fatalf("set version failed: %v", err)
	}
	upToDate, err := e.IsUpToDate(ctx, "/files/a")
	if err != nil || !upToDate {
		t.Fatalf("expected up to date after manual version bump, got %v err=%v", upToDate, err)
	}
	remoteVersion, err := e.GetRemoteVersion(ctx, "/files/a")
	if err != nil || remoteVersion != "5" {
		t.Fatalf("unexpected remote version %q err=%v", remoteVersion, err)
	}
}

func newTestEngine(t *testing.T, strategy naming.Strategy) (*Engine, *fakeDownloader) {
	t.Helper()
	fake := newFakeDownloader()
	e := New(nil)
	if err := e.Init(context.Background(), Config{RootDir: t.TempDir(), VersionFileName: strategy}, fake); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return e, fake
}

// fakeDownloader 以内存 map 模拟远端，记录每个 key 的下载次数。
type fakeDownloader struct {
	mu          sync.Mutex
	objects     map[string][]byte
	downloads   map[string]int
	initErr     error
	downloadErr error
	inited      bool
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		objects:   make(map[string][]byte),
		downloads: make(map[string]int),
	}
}

func (f *fakeDownloader) put(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = []byte(value)
}

func (f *fakeDownloader) setDownloadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadErr = err
}

func (f *fakeDownloader) downloadCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[key]
}

func (f *fakeDownloader) initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inited
}

func (f *fakeDownloader) Provider() downloader.Provider { return "fake" }

func (f *fakeDownloader) Init(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.inited = true
	return nil
}

func (f *fakeDownloader) GetURL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", downloader.ErrURLEmpty
	}
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return "fake://" + key, nil
}

func (f *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	key := strings.TrimPrefix(url, "fake://")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[key]++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	value, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, downloader.ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}
