package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dukahub/dukahub/internal/subscription/gateway"
)

const webhookSignatureHeader = "X-Gateway-Signature"

type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// GatewayWebhook is the unauthenticated gateway callback. The HMAC
// check runs before anything else touches the payload; duplicates are
// acknowledged with 200 because verify is idempotent.
func (s *Server) GatewayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := c.GetHeader(webhookSignatureHeader)
	if !gateway.ValidSignature(body, signature, s.cfg.GatewayWebhookSecret) {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookEvent("unknown", "bad_signature")
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: errorPayload{
			Type:    "unauthenticated",
			Message: "invalid signature",
		}})
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Signed but unparseable; ack so the gateway stops retrying.
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookEvent("unknown", "unparseable")
		}
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	switch envelope.Event {
	case "charge.success":
		reference := strings.TrimSpace(envelope.Data.Reference)
		if reference == "" {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordWebhookEvent(envelope.Event, "missing_reference")
			}
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		if _, err := s.subscriptionSvc.Verify(c.Request.Context(), reference); err != nil {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordWebhookEvent(envelope.Event, "verify_failed")
			}
			// Let the gateway retry; the next verify completes it.
			AbortWithError(c, err)
			return
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookEvent(envelope.Event, "ok")
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})

	default:
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookEvent(envelope.Event, "ignored")
		}
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
