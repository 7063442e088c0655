package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/unicdn/internal/naming"
)

// NewStore 以 basePath 为根目录构建文件对存储，根目录不存在时自动创建。
func NewStore(basePath string, strategy naming.Strategy) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if strategy == nil {
		return nil, errors.New("version naming strategy required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		strategy: strategy,
	}, nil
}

type fileStore struct {
	basePath string
	strategy naming.Strategy
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) Paths(ctx context.Context, subPath string) (Paths, error) {
	contentPath, err := s.contentPath(subPath)
	if err != nil {
		return Paths{}, err
	}

	markerName, err := naming.MarkerName(ctx, s.strategy, filepath.Base(contentPath))
	if err != nil {
		return Paths{}, err
	}

	return Paths{
		Content: contentPath,
		Version: filepath.Join(filepath.Dir(contentPath), markerName),
	}, nil
}

func (s *fileStore) ContentExists(ctx context.Context, subPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	contentPath, err := s.contentPath(subPath)
	if err != nil {
		return false, err
	}
	return fileExists(contentPath)
}

func (s *fileStore) GetLocalVersion(ctx context.Context, subPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	paths, err := s.Paths(ctx, subPath)
	if err != nil {
		return "", err
	}

	intact, err := s.ensureIntact(paths)
	if err != nil {
		return "", err
	}
	if !intact {
		return "", nil
	}

	data, err := os.ReadFile(paths.Version)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *fileStore) SetLocalVersion(ctx context.Context, subPath, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	paths, err := s.Paths(ctx, subPath)
	if err != nil {
		return err
	}
	_, err = writeFileAtomic(paths.Version, []byte(version))
	return err
}

func (s *fileStore) ReadLocalFile(ctx context.Context, subPath string) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths, err := s.Paths(ctx, subPath)
	if err != nil {
		return nil, err
	}

	intact, err := s.ensureIntact(paths)
	if err != nil {
		return nil, err
	}
	if !intact {
		return nil, fmt.Errorf("%s: %w", subPath, ErrNotIntact)
	}

	var (
		body    []byte
		version []byte
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := os.ReadFile(paths.Content)
		body = data
		return err
	})
	g.Go(func() error {
		data, err := os.ReadFile(paths.Version)
		version = data
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ReadResult{
		Bytes:   body,
		Version: string(version),
	}, nil
}

func (s *fileStore) WriteLocalFile(ctx context.Context, subPath string, body []byte, version string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths, err := s.Paths(ctx, subPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(paths.Content), 0o755); err != nil {
		return nil, err
	}

	var written int64
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := writeFileAtomic(paths.Content, body)
		written = n
		return err
	})
	g.Go(func() error {
		_, err := writeFileAtomic(paths.Version, []byte(version))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Entry{
		SubPath:   subPath,
		Paths:     paths,
		SizeBytes: written,
		Version:   version,
		ModTime:   time.Now().UTC(),
	}, nil
}

func (s *fileStore) DeleteLocalFile(ctx context.Context, subPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	paths, err := s.Paths(ctx, subPath)
	if err != nil {
		return false, err
	}

	intact, err := s.ensureIntact(paths)
	if err != nil || !intact {
		return false, err
	}

	if err := removePair(paths); err != nil {
		return false, err
	}
	return true, nil
}

// ensureIntact 检查文件对是否完整；不完整时删除残留的一半并返回 false。
func (s *fileStore) ensureIntact(paths Paths) (bool, error) {
	contentOK, err := fileExists(paths.Content)
	if err != nil {
		return false, err
	}
	versionOK, err := fileExists(paths.Version)
	if err != nil {
		return false, err
	}
	if contentOK && versionOK {
		return true, nil
	}
	if contentOK || versionOK {
		if err := removePair(paths); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (s *fileStore) contentPath(subPath string) (string, error) {
	rel := strings.TrimSpace(filepath.ToSlash(subPath))
	if rel == "" || rel == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, subPath)
	}
	rel = path.Clean("/" + rel)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, subPath)
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, subPath)
	}
	return filePath, nil
}

func removePair(paths Paths) error {
	var g errgroup.Group
	g.Go(func() error { return removeIfExists(paths.Content) })
	g.Go(func() error { return removeIfExists(paths.Version) })
	return g.Wait()
}

func removeIfExists(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func fileExists(name string) (bool, error) {
	info, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// writeFileAtomic 通过临时文件 + rename 写入，失败时清理临时文件。
func writeFileAtomic(filePath string, data []byte) (int64, error) {
	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return 0, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return 0, err
	}
	return int64(written), nil
}
