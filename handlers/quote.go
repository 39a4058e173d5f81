package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/andesco/chartless/pkg/fetcher"
	"github.com/andesco/chartless/pkg/metrics"
	"github.com/andesco/chartless/pkg/quoteproxy"
)

// QuoteSite serves GET /quote/:ticker. Every failure becomes a plain text
// response; nothing here is allowed to take the process down.
func QuoteSite(p *quoteproxy.Proxy, setCSP bool, log zerolog.Logger, rec *metrics.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ticker := utils.CopyString(c.Params("ticker"))

		page, err := p.ProcessQuote(c.UserContext(), ticker)
		if err != nil {
			return quoteError(c, log, rec, ticker, err)
		}

		event := log.Debug().Str("ticker", page.Ticker).Int("bytes", len(page.HTML))
		if p.LogURLs {
			event = event.Str("url", page.URL)
		}
		event.Msg("served quote")
		rec.RecordOutcome("ok")
		return writePage(c, page, setCSP)
	}
}

func writePage(c *fiber.Ctx, page *quoteproxy.Page, setCSP bool) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	if setCSP {
		c.Set(fiber.HeaderContentSecurityPolicy, "frame-ancestors 'none'")
	}
	return c.Status(fiber.StatusOK).Send(page.HTML)
}

func quoteError(c *fiber.Ctx, log zerolog.Logger, rec *metrics.Recorder, ticker string, err error) error {
	var (
		statusErr  *quoteproxy.UpstreamStatusError
		timeoutErr *fetcher.TimeoutError
		invalidErr *quoteproxy.InvalidTickerError
	)

	switch {
	case errors.Is(err, quoteproxy.ErrEmptyTicker), errors.As(err, &invalidErr):
		rec.RecordOutcome("bad_request")
		return sendText(c, fiber.StatusBadRequest, fmt.Sprintf("Bad ticker: %v", err))

	case errors.As(err, &statusErr):
		log.Error().
			Int("upstream_status", statusErr.Status).
			Str("url", statusErr.URL).
			Str("body_start", statusErr.Snippet).
			Msg("upstream fetch failed")
		rec.RecordOutcome("upstream_status")
		return sendText(c, fiber.StatusBadGateway,
			fmt.Sprintf("Upstream fetch failed (%d). Try again or a different ticker.", statusErr.Status))

	case errors.As(err, &timeoutErr):
		log.Error().Err(err).Str("ticker", ticker).Msg("upstream timeout")
		rec.RecordOutcome("timeout")
		return sendText(c, fiber.StatusGatewayTimeout,
			fmt.Sprintf("Upstream timeout (%s). Try again.", timeoutErr.Timeout))

	default:
		log.Error().Err(err).Str("ticker", ticker).Msg("proxy error")
		rec.RecordOutcome("error")
		return sendText(c, fiber.StatusInternalServerError, "Proxy error: "+err.Error())
	}
}

func sendText(c *fiber.Ctx, status int, msg string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(status).SendString(msg)
}
