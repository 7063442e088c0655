package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/unicdn/internal/cache"
	"github.com/any-hub/unicdn/internal/downloader"
	"github.com/any-hub/unicdn/internal/logging"
	"github.com/any-hub/unicdn/internal/naming"
	"github.com/any-hub/unicdn/internal/remote"
)

var (
	// ErrNotInitialized 表示在 Init 之前调用了引擎操作。
	ErrNotInitialized = errors.New("cache engine not initialized")
	// ErrAlreadyInitialized 表示重复调用 Init；Downloader 绑定后不可替换。
	ErrAlreadyInitialized = errors.New("cache engine already initialized")
	// ErrRemoteVersionMissing 表示更新过程中远端版本标记不存在，拒绝写入空版本。
	ErrRemoteVersionMissing = errors.New("remote version marker is absent")
)

// Config 在 Init 时一次性提供，引擎生命周期内不可变。
type Config struct {
	RootDir         string
	VersionFileName naming.Strategy
}

// Engine 协调本地存储、远端版本解析与 Downloader，是更新协议的唯一实现者。
type Engine struct {
	logger *logrus.Logger
	locks  *cache.KeyLocks

	mu    sync.RWMutex
	state *state
}

type state struct {
	cfg        Config
	store      cache.Store
	remote     *remote.Resolver
	downloader downloader.Downloader
}

// New 构造未初始化的引擎；logger 为空时丢弃日志。
func New(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		logger: logger,
		locks:  cache.NewKeyLocks(),
	}
}

// Init 保存配置、创建根目录、绑定并初始化 Downloader。只能成功调用一次。
func (e *Engine) Init(ctx context.Context, cfg Config, d downloader.Downloader) error {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return errors.New("root dir required")
	}
	if cfg.VersionFileName == nil {
		return errors.New("version file naming strategy required")
	}
	if d == nil {
		return errors.New("downloader required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		return ErrAlreadyInitialized
	}

	store, err := cache.NewStore(cfg.RootDir, cfg.VersionFileName)
	if err != nil {
		return err
	}
	if err := d.Init(ctx); err != nil {
		return fmt.Errorf("init downloader %s: %w", d.Provider(), err)
	}

	cfg.RootDir = store.Root()
	e.state = &state{
		cfg:        cfg,
		store:      store,
		remote:     remote.NewResolver(d, cfg.VersionFileName),
		downloader: d,
	}

	e.logger.WithFields(logrus.Fields{
		"action":   "engine_init",
		"root_dir": cfg.RootDir,
		"provider": string(d.Provider()),
	}).Info("cache engine initialized")
	return nil
}

// Downloader 返回 Init 时绑定的 Downloader，未初始化时为 nil。
func (e *Engine) Downloader() downloader.Downloader {
	st, err := e.current()
	if err != nil {
		return nil
	}
	return st.downloader
}

// Root 返回缓存根目录的绝对路径，未初始化时为空。
func (e *Engine) Root() string {
	st, err := e.current()
	if err != nil {
		return ""
	}
	return st.cfg.RootDir
}

// Paths 返回资源在磁盘上的内容文件与版本标记路径。
func (e *Engine) Paths(ctx context.Context, subPath string) (cache.Paths, error) {
	st, err := e.current()
	if err != nil {
		return cache.Paths{}, err
	}
	return st.store.Paths(ctx, subPath)
}

// GetLocalVersion 返回本地版本；文件对不完整时清理残留并返回空字符串。
func (e *Engine) GetLocalVersion(ctx context.Context, subPath string) (string, error) {
	st, err := e.current()
	if err != nil {
		return "", err
	}
	unlock := e.locks.Lock(lockKey(subPath))
	defer unlock()
	return st.store.GetLocalVersion(ctx, subPath)
}

// SetLocalVersion 覆盖本地版本标记。
func (e *Engine) SetLocalVersion(ctx context.Context, subPath, version string) error {
	st, err := e.current()
	if err != nil {
		return err
	}
	unlock := e.locks.Lock(lockKey(subPath))
	defer unlock()
	return st.store.SetLocalVersion(ctx, subPath, version)
}

// GetRemoteVersion 返回远端版本；远端标记确认不存在时为空字符串，其它失败返回 *remote.Error。
func (e *Engine) GetRemoteVersion(ctx context.Context, subPath string) (string, error) {
	st, err := e.current()
	if err != nil {
		return "", err
	}
	return st.remote.GetRemoteVersion(ctx, subPath)
}

// IsUpToDate 以同一个 subPath 比较本地与远端版本。
func (e *Engine) IsUpToDate(ctx context.Context, subPath string) (bool, error) {
	return e.IsUpToDateFrom(ctx, subPath, subPath)
}

// IsUpToDateFrom 并发获取本地与远端版本，仅当内容文件存在且两个版本非空并完全相等时返回 true。
func (e *Engine) IsUpToDateFrom(ctx context.Context, localSubPath, remoteSubPath string) (bool, error) {
	st, err := e.current()
	if err != nil {
		return false, err
	}
	unlock := e.locks.Lock(lockKey(localSubPath))
	defer unlock()
	return e.isUpToDate(ctx, st, localSubPath, remoteSubPath)
}

// UpdateFile 以同一个 subPath 执行更新。
func (e *Engine) UpdateFile(ctx context.Context, subPath string) (bool, error) {
	return e.UpdateFileFrom(ctx, subPath, subPath)
}

// UpdateFileFrom 在本地过期时下载远端内容并替换本地文件对，返回是否执行了更新。
// 已是最新时返回 (false, nil)。失败时资源可能停留在“已删除未写入”的状态，下次读取会自愈。
func (e *Engine) UpdateFileFrom(ctx context.Context, localSubPath, remoteSubPath string) (bool, error) {
	st, err := e.current()
	if err != nil {
		return false, err
	}
	unlock := e.locks.Lock(lockKey(localSubPath))
	defer unlock()

	started := time.Now()
	updated, version, size, err := e.update(ctx, st, localSubPath, remoteSubPath)

	fields := logging.ResourceFields("update", localSubPath, remoteSubPath, string(st.downloader.Provider()))
	fields["updated"] = updated
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		e.logger.WithFields(fields).Error("update_failed")
		return false, err
	}
	if updated {
		fields["version"] = version
		fields["size_bytes"] = size
		e.logger.WithFields(fields).Info("update_complete")
	} else {
		e.logger.WithFields(fields).Debug("up_to_date")
	}
	return updated, nil
}

// ReadLocalFile 读取本地内容与版本；文件对不完整时返回 cache.ErrNotIntact。
func (e *Engine) ReadLocalFile(ctx context.Context, subPath string) (*cache.ReadResult, error) {
	st, err := e.current()
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock(lockKey(subPath))
	defer unlock()
	return st.store.ReadLocalFile(ctx, subPath)
}

// WriteLocalFile 写入新的文件对。
func (e *Engine) WriteLocalFile(ctx context.Context, subPath string, body []byte, version string) (*cache.Entry, error) {
	st, err := e.current()
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock(lockKey(subPath))
	defer unlock()
	return st.store.WriteLocalFile(ctx, subPath, body, version)
}

// DeleteLocalFile 删除文件对；文件对原本就不完整时返回 false。
func (e *Engine) DeleteLocalFile(ctx context.Context, subPath string) (bool, error) {
	st, err := e.current()
	if err != nil {
		return false, err
	}
	unlock := e.locks.Lock(lockKey(subPath))
	defer unlock()

	deleted, err := st.store.DeleteLocalFile(ctx, subPath)
	if err != nil {
		return false, err
	}
	fields := logging.ResourceFields("delete", subPath, "", string(st.downloader.Provider()))
	fields["deleted"] = deleted
	e.logger.WithFields(fields).Debug("delete_complete")
	return deleted, nil
}

func (e *Engine) update(ctx context.Context, st *state, localSubPath, remoteSubPath string) (bool, string, int64, error) {
	upToDate, err := e.isUpToDate(ctx, st, localSubPath, remoteSubPath)
	if err != nil {
		return false, "", 0, err
	}
	if upToDate {
		return false, "", 0, nil
	}

	url, err := st.downloader.GetURL(ctx, remoteSubPath)
	if err != nil {
		return false, "", 0, &remote.Error{Op: "get_url", Key: remoteSubPath, Err: err}
	}
	body, err := st.downloader.Download(ctx, url)
	if err != nil {
		return false, "", 0, &remote.Error{Op: "download", Key: remoteSubPath, Err: err}
	}

	if _, err := st.store.DeleteLocalFile(ctx, localSubPath); err != nil {
		return false, "", 0, fmt.Errorf("delete %s: %w", localSubPath, err)
	}

	version, err := st.remote.GetRemoteVersion(ctx, remoteSubPath)
	if err != nil {
		return false, "", 0, err
	}
	if version == "" {
		return false, "", 0, fmt.Errorf("%s: %w", remoteSubPath, ErrRemoteVersionMissing)
	}

	entry, err := st.store.WriteLocalFile(ctx, localSubPath, body, version)
	if err != nil {
		return false, "", 0, fmt.Errorf("write %s: %w", localSubPath, err)
	}
	return true, version, entry.SizeBytes, nil
}

func (e *Engine) isUpToDate(ctx context.Context, st *state, localSubPath, remoteSubPath string) (bool, error) {
	var localVersion, remoteVersion string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := st.store.GetLocalVersion(gctx, localSubPath)
		localVersion = v
		return err
	})
	g.Go(func() error {
		v, err := st.remote.GetRemoteVersion(gctx, remoteSubPath)
		remoteVersion = v
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	exists, err := st.store.ContentExists(ctx, localSubPath)
	if err != nil {
		return false, err
	}

	reason := ""
	switch {
	case !exists:
		reason = "content_missing"
	case localVersion == "":
		reason = "local_version_missing"
	case remoteVersion == "":
		reason = "remote_version_missing"
	case localVersion != remoteVersion:
		reason = "version_mismatch"
	}
	if reason != "" {
		fields := logging.ResourceFields("check", localSubPath, remoteSubPath, string(st.downloader.Provider()))
		fields["reason"] = reason
		fields["local_version"] = localVersion
		fields["remote_version"] = remoteVersion
		e.logger.WithFields(fields).Debug("not_up_to_date")
		return false, nil
	}
	return true, nil
}

func (e *Engine) current() (*state, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state, nil
}

func lockKey(subPath string) string {
	return path.Clean("/" + filepath.ToSlash(strings.TrimSpace(subPath)))
}
