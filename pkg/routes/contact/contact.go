package contact

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/routes"
)

// Service is implemented by *identity.Service.
type Service interface {
	GetCluster(ctx context.Context, contactID int64) (*models.IdentifyResponse, error)
	DeleteContact(ctx context.Context, contactID int64) error
}

type Handler struct {
	service Service
}

// NewHandler creates the /contacts handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the handler's routes on e.
func (h *Handler) Register(e *echo.Echo) {
	g := e.Group("/contacts")
	g.GET("/:id", h.GetContact)
	g.DELETE("/:id", h.DeleteContact)
}

// GetContact returns the consolidated view of the cluster holding the contact.
func (h *Handler) GetContact(c echo.Context) error {
	id, err := contactID(c)
	if err != nil {
		return err
	}

	resp, err := h.service.GetCluster(c.Request().Context(), id)
	if err != nil {
		return routes.HTTPError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

// DeleteContact soft deletes the contact. A primary with live secondaries answers 409.
func (h *Handler) DeleteContact(c echo.Context) error {
	id, err := contactID(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteContact(c.Request().Context(), id); err != nil {
		return routes.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func contactID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid contact id %q", c.Param("id"))
	}
	return id, nil
}
