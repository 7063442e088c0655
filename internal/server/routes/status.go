package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/unicdn/internal/server"
	"github.com/any-hub/unicdn/internal/syncer"
	"github.com/any-hub/unicdn/internal/version"
)

// SyncReporter 提供最近一轮同步报告。
type SyncReporter interface {
	Last() *syncer.Report
}

// Prober 探测上游是否可达，HTTP downloader 实现了该接口。
type Prober interface {
	Reachable(ctx context.Context, rawURL string) bool
}

// StatusOptions 汇总诊断接口依赖，Prober/Sync 均可为空。
type StatusOptions struct {
	Sync      SyncReporter
	Prober    Prober
	ProbeURL  string
	Resources int
}

// RegisterStatusRoutes 暴露 /-/sync、/-/version 与 /-/healthz 诊断接口。
func RegisterStatusRoutes(app *fiber.App, opts StatusOptions) {
	if app == nil {
		return
	}

	app.Get("/-/sync", func(c fiber.Ctx) error {
		if opts.Sync == nil {
			return server.RenderError(c, fiber.StatusNotFound, "sync_disabled")
		}
		report := opts.Sync.Last()
		if report == nil {
			return server.RenderError(c, fiber.StatusNotFound, "no_sync_report")
		}
		return c.JSON(report)
	})

	app.Get("/-/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version": version.Version,
			"commit":  version.Commit,
			"full":    version.Full(),
		})
	})

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"status":    "ok",
			"resources": opts.Resources,
			"time":      time.Now().UTC().Format(time.RFC3339),
		}
		if opts.Prober != nil && opts.ProbeURL != "" {
			reachable := opts.Prober.Reachable(c.Context(), opts.ProbeURL)
			payload["upstream_reachable"] = reachable
			if !reachable {
				payload["status"] = "degraded"
			}
		}
		return c.JSON(payload)
	})
}
