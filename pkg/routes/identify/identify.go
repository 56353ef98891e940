package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/routes"
	"github.com/priyanshu8007b/bitespeed/pkg/utils"
)

// Identifier is implemented by *identity.Service.
type Identifier interface {
	Identify(ctx context.Context, candidate identity.Candidate) (*models.IdentifyResponse, error)
}

// FlexString accepts a JSON string, number or null. Phone numbers arrive as either.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*f = FlexString(n.String())
		return nil
	}
}

type Request struct {
	Email       string     `json:"email" validate:"required_without_all=Phone PhoneNumber,max=320"`
	Phone       FlexString `json:"phone" validate:"max=64"`
	PhoneNumber FlexString `json:"phoneNumber" validate:"max=64"`
}

// Candidate prefers phone over its phoneNumber alias when both are sent.
func (r Request) Candidate() identity.Candidate {
	phone := string(r.Phone)
	if phone == "" {
		phone = string(r.PhoneNumber)
	}
	return identity.Candidate{Email: r.Email, Phone: phone}
}

type Handler struct {
	service Identifier
}

// NewHandler creates the /identify handler.
func NewHandler(service Identifier) *Handler {
	return &Handler{service: service}
}

// Register mounts the handler's routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/identify", h.Identify)
}

// Identify reconciles the submitted email and phone with the stored contacts.
func (h *Handler) Identify(c echo.Context) error {
	req, err := utils.BindRequest[Request](c)
	if err != nil {
		return err
	}

	candidate := req.Candidate()
	if candidate.IsEmpty() {
		return routes.HTTPError(identity.ErrValidation)
	}

	resp, err := h.service.Identify(c.Request().Context(), candidate)
	if err != nil {
		return routes.HTTPError(err)
	}

	return c.JSON(http.StatusOK, resp)
}
