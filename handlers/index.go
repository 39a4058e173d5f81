package handlers

import "github.com/gofiber/fiber/v2"

const usage = "OK. Use /quote/TICKER (e.g., /quote/AAPL)"

func Index(c *fiber.Ctx) error {
	return sendText(c, fiber.StatusOK, usage)
}
