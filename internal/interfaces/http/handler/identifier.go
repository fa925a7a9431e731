package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
)

// IdentityResolver maps free-text customer identifiers to enrollments
type IdentityResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, raw string) ([]loyaltyapp.ResolvedEnrollment, error)
	Classify(raw string) loyaltyapp.IdentifierClassification
}

// IdentifierHandler exposes identifier classification to clients that
// decide whether to offer a credential-reset style flow
type IdentifierHandler struct {
	BaseHandler
	resolver IdentityResolver
}

// NewIdentifierHandler creates a new IdentifierHandler
func NewIdentifierHandler(resolver IdentityResolver) *IdentifierHandler {
	return &IdentifierHandler{resolver: resolver}
}

// Classify godoc
// @Summary      Classify a customer identifier
// @Description  Report whether an identifier is an email or a phone number and whether it supports a credential reset
// @Tags         identifiers
// @Produce      json
// @Param        identifier query string true "Email or phone number"
// @Success      200 {object} dto.Response{data=loyaltyapp.IdentifierClassification}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /identifiers/classify [get]
func (h *IdentifierHandler) Classify(c *gin.Context) {
	var query dto.IdentifierQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}
	h.Success(c, h.resolver.Classify(query.Identifier))
}
