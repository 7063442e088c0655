package cache

import (
	"context"
	"errors"
	"time"
)

// Store 负责管理 (内容文件, 版本标记) 这一对文件。磁盘布局遵循：
//
//	<StoragePath>/<subPath>                  # 内容文件
//	<StoragePath>/<dir(subPath)>/<marker>    # 版本标记，文件名由 naming.Strategy 决定
//
// 所有操作以 subPath 标识资源，不同 subPath 之间互不影响。
type Store interface {
	// Root 返回缓存根目录的绝对路径。
	Root() string

	// Paths 返回资源对应的内容文件与版本标记文件的绝对路径。
	Paths(ctx context.Context, subPath string) (Paths, error)

	// ContentExists 判断内容文件是否存在（目录不算）。
	ContentExists(ctx context.Context, subPath string) (bool, error)

	// GetLocalVersion 读取版本标记。任意一半缺失时删除残留的另一半并返回空字符串，不视为错误。
	GetLocalVersion(ctx context.Context, subPath string) (string, error)

	// SetLocalVersion 覆盖写入版本标记。
	SetLocalVersion(ctx context.Context, subPath, version string) error

	// ReadLocalFile 并发读取内容与版本标记；文件对不完整时返回 ErrNotIntact。
	ReadLocalFile(ctx context.Context, subPath string) (*ReadResult, error)

	// WriteLocalFile 确保目录存在后并发写入内容与版本标记，两者都完成才算成功。
	WriteLocalFile(ctx context.Context, subPath string, body []byte, version string) (*Entry, error)

	// DeleteLocalFile 删除文件对。任意一半缺失时返回 false（同时清理残留），不视为错误。
	DeleteLocalFile(ctx context.Context, subPath string) (bool, error)
}

// Paths 描述一个资源在磁盘上的两个文件。
type Paths struct {
	Content string `json:"content"`
	Version string `json:"version"`
}

// Entry 描述一次成功写入后的文件对。
type Entry struct {
	SubPath   string    `json:"sub_path"`
	Paths     Paths     `json:"paths"`
	SizeBytes int64     `json:"size_bytes"`
	Version   string    `json:"version"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合内容字节与版本字符串。
type ReadResult struct {
	Bytes   []byte
	Version string
}

var (
	// ErrNotIntact 表示内容文件与版本标记只存在其一（或都不存在），无法读取。
	ErrNotIntact = errors.New("file and version file are not intact")
	// ErrInvalidPath 表示 subPath 为空、指向根目录或越出根目录。
	ErrInvalidPath = errors.New("invalid cache path")
)
