package naming

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidName 表示策略无法为给定文件名产出合法的版本标记文件名。
var ErrInvalidName = errors.New("invalid version file name")

// DefaultSuffix 是内置策略默认追加的后缀。
const DefaultSuffix = "_version.txt"

// Strategy 根据内容文件名（不含目录）返回版本标记文件名。
// 同一个 Engine 生命周期内必须保持确定性：相同输入得到相同输出。
type Strategy func(ctx context.Context, fileName string) (string, error)

// Suffix 在完整文件名后追加 suffix，例如 largefile → largefile_version.txt。
func Suffix(suffix string) Strategy {
	return func(_ context.Context, fileName string) (string, error) {
		return fileName + suffix, nil
	}
}

// Stem 去掉扩展名后追加 suffix，例如 a.bin → a_version.txt。
func Stem(suffix string) Strategy {
	return func(_ context.Context, fileName string) (string, error) {
		stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		if stem == "" {
			stem = fileName
		}
		return stem + suffix, nil
	}
}

// Hidden 生成以 "." 开头的隐藏标记文件，例如 a.bin → .a.bin_version.txt。
func Hidden(suffix string) Strategy {
	return func(_ context.Context, fileName string) (string, error) {
		return "." + fileName + suffix, nil
	}
}

// MarkerName 调用策略并校验结果，保证标记文件与内容文件位于同一目录且互不覆盖。
func MarkerName(ctx context.Context, strategy Strategy, fileName string) (string, error) {
	if strategy == nil {
		return "", fmt.Errorf("%w: strategy is nil", ErrInvalidName)
	}
	if fileName == "" {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidName)
	}

	name, err := strategy(ctx, fileName)
	if err != nil {
		return "", fmt.Errorf("resolve version file name for %s: %w", fileName, err)
	}
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty result for %s", ErrInvalidName, fileName)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case name == "." || name == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case name == fileName:
		return "", fmt.Errorf("%w: %q collides with the content file", ErrInvalidName, name)
	}
	return name, nil
}
