package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"unipulse/internal/consent"
	"unipulse/internal/visit"
)

const (
	msgAccepted       = "accepted"
	errInvalidRequest = "Invalid request"
)

// Beacon bodies arrive from navigator.sendBeacon as text/plain, so they are
// decoded from the raw body regardless of the content type.

type eventParams struct {
	Category string   `json:"category"`
	Action   string   `json:"action"`
	Label    string   `json:"label"`
	Path     string   `json:"path"`
	Value    *float64 `json:"value"`
}

type perfParams struct {
	Path   string   `json:"path"`
	TTFBMS *float64 `json:"ttfb_ms"`
	FCPMS  *float64 `json:"fcp_ms"`
	LCPMS  *float64 `json:"lcp_ms"`
	CLS    *float64 `json:"cls"`
}

type errorParams struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Path    string `json:"path"`
}

type consentParams struct {
	State string `json:"state"`
}

// UnloadAction closes the page and the visit when the browser leaves.
func (h *Tracking) UnloadAction(c *fiber.Ctx) error {
	h.For(c).Unload(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

// ConsentShowAction reports the stored geo consent.
func (h *Tracking) ConsentShowAction(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": h.For(c).Consent()})
}

// ConsentUpdateAction stores the visitor's geo consent choice. Granting it
// enriches the running visit with the visitor's location.
func (h *Tracking) ConsentUpdateAction(c *fiber.Ctx) error {
	var params consentParams
	if err := decodeBeacon(c, &params); err != nil {
		return handleError(c, err)
	}
	state, err := consent.ParseState(params.State)
	if err != nil {
		return handleError(c, fiber.NewError(fiber.StatusBadRequest, err.Error()))
	}

	t := h.For(c)
	switch state {
	case consent.Granted:
		err = t.GrantGeoConsent(c.UserContext())
	case consent.Denied:
		err = t.DenyGeoConsent()
	default:
		err = t.ResetGeoConsent()
	}
	if err != nil {
		h.logger.Error("Failed to store geo consent", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store consent",
		})
	}

	return c.JSON(fiber.Map{"state": state})
}

// EventAction relays a custom interaction.
func (h *Tracking) EventAction(c *fiber.Ctx) error {
	var params eventParams
	if err := decodeBeacon(c, &params); err != nil {
		return handleError(c, err)
	}
	if strings.TrimSpace(params.Category) == "" || strings.TrimSpace(params.Action) == "" {
		return handleError(c, fiber.NewError(fiber.StatusUnprocessableEntity, "category and action are required"))
	}

	h.For(c).TrackEvent(visit.Event{
		Category: params.Category,
		Action:   params.Action,
		Label:    params.Label,
		Path:     params.Path,
		Value:    params.Value,
	})
	return accepted(c)
}

// PerfAction relays web vitals for a page load.
func (h *Tracking) PerfAction(c *fiber.Ctx) error {
	var params perfParams
	if err := decodeBeacon(c, &params); err != nil {
		return handleError(c, err)
	}

	h.For(c).TrackPerformance(visit.Vitals{
		Path:   params.Path,
		TTFBMS: params.TTFBMS,
		FCPMS:  params.FCPMS,
		LCPMS:  params.LCPMS,
		CLS:    params.CLS,
	})
	return accepted(c)
}

// ErrorAction relays a client-side error.
func (h *Tracking) ErrorAction(c *fiber.Ctx) error {
	var params errorParams
	if err := decodeBeacon(c, &params); err != nil {
		return handleError(c, err)
	}
	if strings.TrimSpace(params.Message) == "" {
		return handleError(c, fiber.NewError(fiber.StatusUnprocessableEntity, "message is required"))
	}

	h.For(c).TrackError(visit.ClientError{
		Message: params.Message,
		Stack:   params.Stack,
		Path:    params.Path,
	})
	return accepted(c)
}

func decodeBeacon(c *fiber.Ctx, out any) error {
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, errInvalidRequest)
	}
	return nil
}

func accepted(c *fiber.Ctx) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": msgAccepted,
		"status":  fiber.StatusAccepted,
	})
}

func handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": errInvalidRequest,
	})
}
