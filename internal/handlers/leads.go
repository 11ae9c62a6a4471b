package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"leadpulse/internal/services"
)

// LeadHandler serves the read-side query surface: lead listings, single
// profiles with their automation history, and aggregate pipeline stats.
type LeadHandler struct {
	stats *services.StatsService
}

// NewLeadHandler creates a new lead query handler
func NewLeadHandler(stats *services.StatsService) *LeadHandler {
	return &LeadHandler{stats: stats}
}

// List returns one page of leads sorted hottest-first
// GET /api/leads?limit=50&offset=0
func (h *LeadHandler) List(c *fiber.Ctx) error {
	limit := parsePositiveInt(c.Query("limit"), 50, 200)
	offset := parsePositiveInt(c.Query("offset"), 0, 1<<30)

	leads, total, err := h.stats.ListLeads(c.Context(), limit, offset)
	if err != nil {
		log.Printf("❌ [LEADS] Failed to list leads: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list leads",
		})
	}

	responses := make([]interface{}, 0, len(leads))
	for _, lead := range leads {
		responses = append(responses, lead.ToResponse())
	}

	return c.JSON(fiber.Map{
		"leads":  responses,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get returns one lead profile plus its automation job history
// GET /api/leads/:identity
func (h *LeadHandler) Get(c *fiber.Ctx) error {
	identityID := c.Params("identity")
	if identityID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Identity is required",
		})
	}

	profile, err := h.stats.GetProfile(c.Context(), identityID)
	if err != nil {
		log.Printf("❌ [LEADS] Failed to load profile %s: %v", identityID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lead",
		})
	}
	if profile == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lead not found",
		})
	}

	jobs, err := h.stats.ListJobs(c.Context(), identityID)
	if err != nil {
		log.Printf("⚠️ [LEADS] Failed to load jobs for %s: %v", identityID, err)
	}

	return c.JSON(fiber.Map{
		"lead": profile.ToResponse(),
		"jobs": jobs,
	})
}

// Stats returns aggregate pipeline stats (cached)
// GET /api/stats
func (h *LeadHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.stats.GetAggregateStats(c.Context())
	if err != nil {
		log.Printf("❌ [LEADS] Failed to compute stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}
	return c.JSON(stats)
}

func parsePositiveInt(raw string, defaultValue, max int) int {
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return defaultValue
	}
	if parsed > max {
		return max
	}
	return parsed
}
