package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	authdomain "github.com/dukahub/dukahub/internal/auth/domain"
	"github.com/dukahub/dukahub/internal/authorization"
	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	reportingdomain "github.com/dukahub/dukahub/internal/reporting/domain"
	salesdomain "github.com/dukahub/dukahub/internal/sales/domain"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	subscriptiondomain "github.com/dukahub/dukahub/internal/subscription/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthenticated")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware turns the last gin error into the JSON error
// envelope. Registered after CORS so error responses keep the
// cross-origin headers.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func mapError(err error) (int, errorPayload) {
	kind, detail := classify(err)
	switch kind {
	case "invalid_argument":
		return http.StatusBadRequest, errorPayload{Type: kind, Message: "invalid argument", Detail: detail}
	case "unauthenticated":
		return http.StatusUnauthorized, errorPayload{Type: kind, Message: "unauthenticated"}
	case "forbidden":
		return http.StatusForbidden, errorPayload{Type: kind, Message: "forbidden"}
	case "not_found":
		return http.StatusNotFound, errorPayload{Type: kind, Message: "not found"}
	case "conflict":
		return http.StatusConflict, errorPayload{Type: kind, Message: "conflict", Detail: detail}
	case "insufficient":
		return http.StatusConflict, errorPayload{Type: kind, Message: "insufficient stock", Detail: detail}
	case "precondition_failed":
		return http.StatusPreconditionFailed, errorPayload{Type: kind, Message: "subscription does not permit this action"}
	case "deadline_exceeded":
		return http.StatusGatewayTimeout, errorPayload{Type: kind, Message: "deadline exceeded"}
	case "gateway_unavailable":
		return http.StatusBadGateway, errorPayload{Type: kind, Message: "payment gateway unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal", Message: "internal server error"}
	}
}

// classify maps an error to its taxonomy kind plus an optional detail
// string safe to show the caller.
func classify(err error) (string, string) {
	switch {
	case err == nil:
		return "internal", ""

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authdomain.ErrWeakPassword),
		errors.Is(err, tenantdomain.ErrInvalidName),
		errors.Is(err, tenantdomain.ErrInvalidSubdomain),
		errors.Is(err, tenantdomain.ErrInvalidTimezone),
		errors.Is(err, tenantdomain.ErrInvalidRole),
		errors.Is(err, tenantdomain.ErrInvalidBranch),
		errors.Is(err, tenantdomain.ErrBranchNesting),
		errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidSKU),
		errors.Is(err, catalogdomain.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrServiceHasStock),
		errors.Is(err, catalogdomain.ErrUnknownCategory),
		errors.Is(err, catalogdomain.ErrUnknownUnit),
		errors.Is(err, stockdomain.ErrInvalidReason),
		errors.Is(err, stockdomain.ErrInvalidDelta),
		errors.Is(err, stockdomain.ErrNotTracked),
		errors.Is(err, salesdomain.ErrEmptySale),
		errors.Is(err, salesdomain.ErrInvalidQuantity),
		errors.Is(err, salesdomain.ErrInvalidPrice),
		errors.Is(err, salesdomain.ErrInvalidPaymentMethod),
		errors.Is(err, salesdomain.ErrUnknownProduct),
		errors.Is(err, reportingdomain.ErrInvalidRange),
		errors.Is(err, reportingdomain.ErrInvalidDimension),
		errors.Is(err, subscriptiondomain.ErrInvalidCycle),
		errors.Is(err, subscriptiondomain.ErrInvalidReference),
		errors.Is(err, subscriptiondomain.ErrUnknownBranch),
		errors.Is(err, authorization.ErrInvalidAction),
		errors.Is(err, authorization.ErrInvalidObject):
		return "invalid_argument", rootMessage(err)

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, authdomain.ErrSessionNotFound):
		return "unauthenticated", ""

	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, tenantdomain.ErrForbidden),
		errors.Is(err, tenantdomain.ErrSwitchForbidden),
		errors.Is(err, tenantdomain.ErrNotAMember),
		errors.Is(err, tenantdomain.ErrInactive),
		errors.Is(err, salesdomain.ErrForbidden),
		errors.Is(err, stockdomain.ErrForbidden),
		errors.Is(err, reportingdomain.ErrForbidden):
		return "forbidden", ""

	// Scoped lookups collapse to not_found so callers cannot probe
	// other tenants.
	case errors.Is(err, authdomain.ErrUnknownTenant),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrMemberNotFound),
		errors.Is(err, catalogdomain.ErrProductNotFound),
		errors.Is(err, catalogdomain.ErrCategoryNotFound),
		errors.Is(err, catalogdomain.ErrBranchHasNoCatalog),
		errors.Is(err, stockdomain.ErrStockNotFound),
		errors.Is(err, salesdomain.ErrSaleNotFound),
		errors.Is(err, subscriptiondomain.ErrBranchNotCovered),
		errors.Is(err, gorm.ErrRecordNotFound):
		return "not_found", ""

	case errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, tenantdomain.ErrSubdomainTaken),
		errors.Is(err, tenantdomain.ErrMemberExists),
		errors.Is(err, catalogdomain.ErrDuplicateSKU),
		errors.Is(err, catalogdomain.ErrDuplicateCategory),
		errors.Is(err, catalogdomain.ErrDuplicateUnit),
		errors.Is(err, subscriptiondomain.ErrBranchCovered),
		errors.Is(err, subscriptiondomain.ErrNotCancellable),
		errors.Is(err, subscriptiondomain.ErrNotReactivatable),
		errors.Is(err, subscriptiondomain.ErrNotSubscribed),
		errors.Is(err, subscriptiondomain.ErrNoAuthorization),
		errors.Is(err, subscriptiondomain.ErrGatewayDeclined):
		return "conflict", rootMessage(err)

	case errors.Is(err, stockdomain.ErrInsufficientStock):
		return "insufficient", rootMessage(err)

	case errors.Is(err, authorization.ErrSubscriptionExpired):
		return "precondition_failed", ""

	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded", ""

	case errors.Is(err, subscriptiondomain.ErrGatewayUnavailable):
		return "gateway_unavailable", ""

	default:
		return "internal", ""
	}
}

// rootMessage surfaces the sentinel plus any appended context
// ("insufficient_stock: MAIZE-FLOUR-2KG") as the caller-visible detail.
func rootMessage(err error) string {
	return strings.TrimSpace(err.Error())
}

// classifyErrorForLog feeds the request logger the taxonomy kind and
// the raw error string.
func classifyErrorForLog(err error) (string, string) {
	kind, _ := classify(err)
	if err == nil {
		return kind, ""
	}
	return kind, err.Error()
}
