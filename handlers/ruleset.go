package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andesco/chartless/pkg/ruleset"
)

// Ruleset dumps the active rule set as YAML unless exposure is disabled.
func Ruleset(rs *ruleset.RuleSet, expose bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !expose {
			return sendText(c, fiber.StatusForbidden, "Ruleset Disabled")
		}

		body, err := rs.YAML()
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/x-yaml")
		return c.Send(body)
	}
}
