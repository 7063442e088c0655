package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/unicdn/internal/cache"
	"github.com/any-hub/unicdn/internal/engine"
	"github.com/any-hub/unicdn/internal/remote"
	"github.com/any-hub/unicdn/internal/server"
)

// CacheEngine 是资源接口对缓存引擎的最小依赖，测试中可注入假实现。
type CacheEngine interface {
	GetLocalVersion(ctx context.Context, subPath string) (string, error)
	IsUpToDateFrom(ctx context.Context, localSubPath, remoteSubPath string) (bool, error)
	UpdateFileFrom(ctx context.Context, localSubPath, remoteSubPath string) (bool, error)
	ReadLocalFile(ctx context.Context, subPath string) (*cache.ReadResult, error)
	DeleteLocalFile(ctx context.Context, subPath string) (bool, error)
}

type resourcePayload struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	RemotePath   string `json:"remote_path"`
	LocalVersion string `json:"local_version"`
	UpToDate     *bool  `json:"up_to_date,omitempty"`
	LocalError   string `json:"local_error,omitempty"`
}

// RegisterResourceRoutes 暴露 /-/resources 系列接口：查询、强制更新、读取内容与删除本地缓存。
func RegisterResourceRoutes(app *fiber.App, registry *server.ResourceRegistry, eng CacheEngine, logger *logrus.Logger) {
	if app == nil || registry == nil || eng == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &resourceHandler{registry: registry, engine: eng, logger: logger}

	app.Get("/-/resources", h.list)
	app.Get("/-/resources/:name", h.detail)
	app.Post("/-/resources/:name/update", h.update)
	app.Get("/-/resources/:name/content", h.content)
	app.Delete("/-/resources/:name", h.remove)
}

type resourceHandler struct {
	registry *server.ResourceRegistry
	engine   CacheEngine
	logger   *logrus.Logger
}

func (h *resourceHandler) list(c fiber.Ctx) error {
	ctx := c.Context()
	routes := h.registry.List()
	items := make([]resourcePayload, 0, len(routes))
	for _, route := range routes {
		item := encodeResource(route)
		version, err := h.engine.GetLocalVersion(ctx, route.LocalPath)
		if err != nil {
			item.LocalError = err.Error()
		}
		item.LocalVersion = version
		items = append(items, item)
	}
	return c.JSON(fiber.Map{"resources": items})
}

func (h *resourceHandler) detail(c fiber.Ctx) error {
	route, ok := h.lookup(c)
	if !ok {
		return server.RenderError(c, fiber.StatusNotFound, "resource_not_found")
	}
	ctx := c.Context()

	upToDate, err := h.engine.IsUpToDateFrom(ctx, route.LocalPath, route.RemotePath)
	if err != nil {
		return h.renderFailure(c, route, "check", err)
	}
	version, err := h.engine.GetLocalVersion(ctx, route.LocalPath)
	if err != nil {
		return h.renderFailure(c, route, "check", err)
	}

	item := encodeResource(*route)
	item.LocalVersion = version
	item.UpToDate = &upToDate
	return c.JSON(item)
}

func (h *resourceHandler) update(c fiber.Ctx) error {
	route, ok := h.lookup(c)
	if !ok {
		return server.RenderError(c, fiber.StatusNotFound, "resource_not_found")
	}
	ctx := c.Context()

	updated, err := h.engine.UpdateFileFrom(ctx, route.LocalPath, route.RemotePath)
	if err != nil {
		return h.renderFailure(c, route, "update", err)
	}
	version, err := h.engine.GetLocalVersion(ctx, route.LocalPath)
	if err != nil {
		return h.renderFailure(c, route, "update", err)
	}
	return c.JSON(fiber.Map{
		"name":    route.Config.Name,
		"updated": updated,
		"version": version,
	})
}

func (h *resourceHandler) content(c fiber.Ctx) error {
	route, ok := h.lookup(c)
	if !ok {
		return server.RenderError(c, fiber.StatusNotFound, "resource_not_found")
	}

	result, err := h.engine.ReadLocalFile(c.Context(), route.LocalPath)
	if err != nil {
		if errors.Is(err, cache.ErrNotIntact) {
			return server.RenderError(c, fiber.StatusNotFound, "not_cached")
		}
		return h.renderFailure(c, route, "read", err)
	}

	c.Set("X-Cache-Version", result.Version)
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(result.Bytes)
}

func (h *resourceHandler) remove(c fiber.Ctx) error {
	route, ok := h.lookup(c)
	if !ok {
		return server.RenderError(c, fiber.StatusNotFound, "resource_not_found")
	}

	deleted, err := h.engine.DeleteLocalFile(c.Context(), route.LocalPath)
	if err != nil {
		return h.renderFailure(c, route, "delete", err)
	}
	return c.JSON(fiber.Map{
		"name":    route.Config.Name,
		"deleted": deleted,
	})
}

func (h *resourceHandler) lookup(c fiber.Ctx) (*server.ResourceRoute, bool) {
	return h.registry.Lookup(c.Params("name"))
}

// renderFailure 将远端失败映射为 502，其余为 500，并记录 warn 日志。
func (h *resourceHandler) renderFailure(c fiber.Ctx, route *server.ResourceRoute, op string, err error) error {
	status, code := classifyError(err)
	h.logger.WithFields(logrus.Fields{
		"action":     "api",
		"op":         op,
		"resource":   route.Config.Name,
		"local_path": route.LocalPath,
		"request_id": server.RequestID(c),
		"error":      err.Error(),
	}).Warn("resource_request_failed")
	return server.RenderError(c, status, code)
}

func classifyError(err error) (int, string) {
	var remoteErr *remote.Error
	switch {
	case errors.As(err, &remoteErr), errors.Is(err, engine.ErrRemoteVersionMissing):
		return fiber.StatusBadGateway, "remote_failed"
	case errors.Is(err, engine.ErrNotInitialized):
		return fiber.StatusServiceUnavailable, "engine_not_initialized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func encodeResource(route server.ResourceRoute) resourcePayload {
	return resourcePayload{
		Name:       route.Config.Name,
		Path:       route.LocalPath,
		RemotePath: route.RemotePath,
	}
}
