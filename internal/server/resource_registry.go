package server

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/any-hub/unicdn/internal/config"
	"github.com/any-hub/unicdn/internal/syncer"
)

// ResourceRoute 将资源配置与规范化后的本地/远端路径聚合在一起，
// 供 API 与同步器直接复用，避免重复解析配置。
type ResourceRoute struct {
	// Config 是 config.toml 中声明的资源字段副本。
	Config config.ResourceConfig
	// LocalPath/RemotePath 均以 / 开头，RemotePath 未配置时等于 LocalPath。
	LocalPath  string
	RemotePath string
}

// ResourceRegistry 提供资源名称到 ResourceRoute 的查询能力。
type ResourceRegistry struct {
	routes  map[string]*ResourceRoute
	ordered []*ResourceRoute
}

// NewResourceRegistry 根据配置构建名称映射。调用方应在启动阶段创建一次并复用。
func NewResourceRegistry(cfg *config.Config) (*ResourceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &ResourceRegistry{
		routes: make(map[string]*ResourceRoute, len(cfg.Resources)),
	}

	for _, res := range cfg.Resources {
		name := normalizeName(res.Name)
		if name == "" {
			return nil, errors.New("resource name is required")
		}
		if _, exists := registry.routes[name]; exists {
			return nil, fmt.Errorf("duplicate resource name detected for %s", name)
		}

		route, err := buildResourceRoute(res)
		if err != nil {
			return nil, err
		}

		registry.routes[name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据资源名称查找 ResourceRoute。
func (r *ResourceRegistry) Lookup(name string) (*ResourceRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[normalizeName(name)]
	return route, ok
}

// List 返回当前注册的资源列表（按配置定义的顺序）。
func (r *ResourceRegistry) List() []ResourceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]ResourceRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

// SyncResources 输出同步器所需的资源描述。
func (r *ResourceRegistry) SyncResources() []syncer.Resource {
	routes := r.List()
	if len(routes) == 0 {
		return nil
	}
	result := make([]syncer.Resource, len(routes))
	for i, route := range routes {
		result[i] = syncer.Resource{
			Name:       route.Config.Name,
			Path:       route.LocalPath,
			RemotePath: route.RemotePath,
		}
	}
	return result
}

func buildResourceRoute(res config.ResourceConfig) (*ResourceRoute, error) {
	localPath, err := normalizeSubPath(res.Path)
	if err != nil {
		return nil, fmt.Errorf("resource %s: invalid path: %w", res.Name, err)
	}
	remotePath, err := normalizeSubPath(res.EffectiveRemotePath())
	if err != nil {
		return nil, fmt.Errorf("resource %s: invalid remote path: %w", res.Name, err)
	}
	return &ResourceRoute{
		Config:     res,
		LocalPath:  localPath,
		RemotePath: remotePath,
	}, nil
}

func normalizeName(raw string) string {
	return strings.TrimSpace(raw)
}

func normalizeSubPath(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/"))
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	clean := path.Clean("/" + trimmed)
	if clean == "/" {
		return "", errors.New("path points at the root")
	}
	return clean, nil
}
