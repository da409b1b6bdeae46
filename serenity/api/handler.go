package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/serenity/serenity/generation/harness"
)

// Processor runs one turn. *harness.Orchestrator satisfies it.
type Processor interface {
	ProcessTurn(ctx context.Context, message, identity string) harness.TurnResult
}

// Handler decodes JSON requests, runs them through a Processor and encodes
// the response. It is the boundary a transport layer would call.
type Handler struct {
	processor Processor
	requests  *Validator
	responses *Validator
}

// NewHandler compiles the request and response schemas.
func NewHandler(p Processor) (*Handler, error) {
	req, err := NewValidator(RequestSchema())
	if err != nil {
		return nil, err
	}
	resp, err := NewValidator(ResponseSchema())
	if err != nil {
		return nil, err
	}
	return &Handler{processor: p, requests: req, responses: resp}, nil
}

// Handle processes a single JSON request body. Errors are only returned for
// malformed requests; pipeline failures are already folded into the reply.
func (h *Handler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	if err := h.requests.Validate(body); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	resp := FromTurnResult(h.processor.ProcessTurn(ctx, req.Message, req.Identity))
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	if err := h.responses.Validate(out); err != nil {
		return nil, fmt.Errorf("response violates contract: %w", err)
	}
	return out, nil
}
