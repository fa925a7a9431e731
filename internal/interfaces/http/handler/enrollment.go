package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
)

// EnrollmentHandler handles enrollment and ledger endpoints
type EnrollmentHandler struct {
	BaseHandler
	ledger   LedgerService
	resolver IdentityResolver
}

// NewEnrollmentHandler creates a new EnrollmentHandler
func NewEnrollmentHandler(ledger LedgerService, resolver IdentityResolver) *EnrollmentHandler {
	return &EnrollmentHandler{ledger: ledger, resolver: resolver}
}

// Ensure godoc
// @Summary      Enroll a customer
// @Description  Enroll a customer in a program. Answers 201 when enrolled by this call and 200 when the enrollment already existed
// @Tags         enrollments
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        request body loyaltyapp.EnsureEnrollmentRequest true "Customer and program"
// @Success      200 {object} dto.Response{data=loyaltyapp.EnrollmentResponse}
// @Success      201 {object} dto.Response{data=loyaltyapp.EnrollmentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments [post]
func (h *EnrollmentHandler) Ensure(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req loyaltyapp.EnsureEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	enrollment, created, err := h.ledger.EnsureEnrollment(c.Request.Context(), loyaltyapp.EnsureEnrollmentInput{
		TenantID:           tenantID,
		CustomerIdentifier: req.CustomerIdentifier,
		ProgramID:          req.ProgramID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if created {
		h.Created(c, enrollment)
		return
	}
	h.Success(c, enrollment)
}

// Lookup godoc
// @Summary      Look up enrollments by identifier
// @Description  Resolve a free-text customer identifier (email or phone) to the customer's enrollments
// @Tags         enrollments
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        identifier query string true "Email or phone number"
// @Success      200 {object} dto.Response{data=[]loyaltyapp.ResolvedEnrollment}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/lookup [get]
func (h *EnrollmentHandler) Lookup(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var query dto.IdentifierQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	enrollments, err := h.resolver.Resolve(c.Request.Context(), tenantID, query.Identifier)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, enrollments)
}

// Balance godoc
// @Summary      Get enrollment balance
// @Description  Get the current balance, goal progress and redemption eligibility
// @Tags         enrollments
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.BalanceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/balance [get]
func (h *EnrollmentHandler) Balance(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// History godoc
// @Summary      List ledger entries
// @Description  List an enrollment's ledger entries, newest first
// @Tags         enrollments
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]loyaltyapp.TransactionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/history [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	var query dto.PageRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	page, err := h.ledger.ListHistory(c.Request.Context(), tenantID, id, query.Page, query.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Audit godoc
// @Summary      Audit an enrollment ledger
// @Description  Replay the ledger and compare it with the stored balance
// @Tags         enrollments
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.AuditResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/audit [get]
func (h *EnrollmentHandler) Audit(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	report, err := h.ledger.Audit(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Accrue godoc
// @Summary      Accrue to an enrollment
// @Description  Add stamps, points or cashback to the balance
// @Tags         enrollments
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Param        Idempotency-Key header string false "Replays the original entry when repeated"
// @Param        request body loyaltyapp.AccrueRequest true "Amount to accrue"
// @Success      200 {object} dto.Response{data=loyaltyapp.TransactionResponse}
// @Success      201 {object} dto.Response{data=loyaltyapp.TransactionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/accruals [post]
func (h *EnrollmentHandler) Accrue(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	var req loyaltyapp.AccrueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	tx, err := h.ledger.Accrue(c.Request.Context(), loyaltyapp.AccrueInput{
		TenantID:       tenantID,
		EnrollmentID:   id,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	h.respondEntry(c, tx, err)
}

// Purchase godoc
// @Summary      Accrue cashback on a purchase
// @Description  Add the program's cashback rate applied to a purchase amount
// @Tags         enrollments
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Param        Idempotency-Key header string false "Replays the original entry when repeated"
// @Param        request body loyaltyapp.PurchaseRequest true "Purchase amount"
// @Success      200 {object} dto.Response{data=loyaltyapp.TransactionResponse}
// @Success      201 {object} dto.Response{data=loyaltyapp.TransactionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/purchases [post]
func (h *EnrollmentHandler) Purchase(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	var req loyaltyapp.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	tx, err := h.ledger.AccruePurchase(c.Request.Context(), loyaltyapp.PurchaseInput{
		TenantID:       tenantID,
		EnrollmentID:   id,
		PurchaseAmount: req.PurchaseAmount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	h.respondEntry(c, tx, err)
}

// Redeem godoc
// @Summary      Redeem from an enrollment
// @Description  Deduct a cost from the balance. Omitting cost redeems the goal on stamps and points programs
// @Tags         enrollments
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Param        Idempotency-Key header string false "Replays the original entry when repeated"
// @Param        request body loyaltyapp.RedeemRequest true "Redemption"
// @Success      200 {object} dto.Response{data=loyaltyapp.TransactionResponse}
// @Success      201 {object} dto.Response{data=loyaltyapp.TransactionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/redemptions [post]
func (h *EnrollmentHandler) Redeem(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	var req loyaltyapp.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	input := loyaltyapp.RedeemInput{
		TenantID:       tenantID,
		EnrollmentID:   id,
		Description:    req.Description,
		Cost:           req.Cost,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	}

	tx, err := h.ledger.Redeem(c.Request.Context(), input)
	h.respondEntry(c, tx, err)
}

// Expire godoc
// @Summary      Expire an enrollment
// @Description  Close an active enrollment. The balance is kept for audit
// @Tags         enrollments
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.EnrollmentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/expire [post]
func (h *EnrollmentHandler) Expire(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	enrollment, err := h.ledger.Expire(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, enrollment)
}

// Reactivate godoc
// @Summary      Reactivate an enrollment
// @Description  Reopen an expired or redeemed enrollment
// @Tags         enrollments
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Enrollment ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.EnrollmentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /enrollments/{id}/reactivate [post]
func (h *EnrollmentHandler) Reactivate(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	enrollment, err := h.ledger.Reactivate(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, enrollment)
}

// respondEntry answers a ledger mutation: 201 for a new entry, 200 when an
// idempotency key replayed an earlier one
func (h *EnrollmentHandler) respondEntry(c *gin.Context, tx *loyaltyapp.TransactionResponse, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if tx.Replayed {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(tx))
		return
	}
	h.Created(c, tx)
}
