package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"realty-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// UseCase is the pipeline surface the handler drives.
type UseCase interface {
	HandleMessage(ctx context.Context, in usecase.MessageInput) error
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler adapts Twilio's webhook (relayed through API Gateway) to the
// message pipeline.
type Handler struct {
	uc UseCase
}

func NewHandler(uc UseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Handle processes one webhook delivery. Twilio posts the inbound message as
// form fields; API Gateway may hand the body over base64-encoded.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := resolveCorrelationID(req.Headers)

	in, err := parseWebhook(req)
	if err != nil {
		return errorJSON(correlationID, http.StatusBadRequest, usecase.ErrorInvalidInput, "malformed_webhook"), nil
	}

	if err := h.uc.HandleMessage(ctx, in); err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			return errorJSON(correlationID, statusForCode(ucErr.Code), ucErr.Code, ucErr.Reason), nil
		}
		return errorJSON(correlationID, http.StatusInternalServerError, usecase.ErrorInternal, "unexpected_error"), nil
	}

	return okJSON(correlationID), nil
}

// parseWebhook extracts the sender and message text from Twilio's
// form-encoded payload. The whatsapp: channel prefix is stripped so the rest
// of the system deals in bare phone numbers.
func parseWebhook(req events.APIGatewayProxyRequest) (usecase.MessageInput, error) {
	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return usecase.MessageInput{}, errors.New("handler: invalid base64 body")
		}
		body = string(decoded)
	}

	form, err := url.ParseQuery(body)
	if err != nil {
		return usecase.MessageInput{}, errors.New("handler: invalid form body")
	}

	sender := strings.TrimPrefix(form.Get("From"), "whatsapp:")
	text := form.Get("Body")
	if strings.TrimSpace(sender) == "" || strings.TrimSpace(text) == "" {
		return usecase.MessageInput{}, errors.New("handler: missing From or Body")
	}
	return usecase.MessageInput{Sender: sender, Body: text}, nil
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// resolveCorrelationID returns the caller's correlation id if one was sent
// (header lookup is case-insensitive), otherwise a fresh uuid.
func resolveCorrelationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}

func okJSON(correlationID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(ackResponse{Status: "received"})
	return jsonResponse(correlationID, http.StatusOK, string(body))
}

func errorJSON(correlationID string, status int, code usecase.ErrorCode, reason string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: string(code), Reason: reason})
	return jsonResponse(correlationID, status, string(body))
}

func jsonResponse(correlationID string, status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: body,
	}
}
