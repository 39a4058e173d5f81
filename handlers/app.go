package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/andesco/chartless/pkg/config"
	"github.com/andesco/chartless/pkg/fetcher"
	"github.com/andesco/chartless/pkg/metrics"
	"github.com/andesco/chartless/pkg/quoteproxy"
	"github.com/andesco/chartless/pkg/rewriter"
	"github.com/andesco/chartless/pkg/ruleset"
)

// NewApp wires the pipeline for cfg and registers every route. The returned
// app is not modified after this call.
func NewApp(cfg *config.Config, log zerolog.Logger) (*fiber.App, error) {
	rules, err := ruleset.NewRuleSet(cfg.RulesetPath)
	if err != nil {
		return nil, err
	}
	rw, err := rewriter.New(rules, rewriter.Mode(cfg.FilterMode), cfg.StripScripts)
	if err != nil {
		return nil, fmt.Errorf("compile ruleset: %w", err)
	}
	log.Info().
		Int("matchers", rules.Count()).
		Str("mode", string(rw.Mode())).
		Bool("strip_scripts", rw.Hardening()).
		Msg("loaded ruleset")

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	proxy := &quoteproxy.Proxy{
		Origin: cfg.Origin,
		Fetcher: fetcher.New(cfg.Origin,
			fetcher.WithTimeout(cfg.Timeout),
			fetcher.WithMaxBodyBytes(cfg.MaxBodyBytes),
		),
		Rewriter: rw,
		Strict:   cfg.StrictTickers,
		LogURLs:  cfg.LogURLs,
		Log:      log,
		Metrics:  rec,
	}

	app := fiber.New(fiber.Config{
		Prefork:               cfg.Prefork,
		UnescapePath:          true,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(RequestLogger(log))
	app.Use(recover.New())

	app.Get("/", Index)
	app.Get("/quote/:ticker", QuoteSite(proxy, cfg.SetCSP, log, rec))
	app.Get("/ruleset", Ruleset(rules, cfg.ExposeRuleset))
	if rec != nil {
		app.Get("/metrics", adaptor.HTTPHandler(rec.Handler()))
	}

	return app, nil
}

// errorHandler turns anything that escaped a handler, panics included, into
// a plain text response.
func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Proxy error: " + err.Error()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(code).SendString(msg)
	}
}
