package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/decision/pkg/decision"
)

// DecisionMaker is the decision core surface the authorize handlers use.
type DecisionMaker interface {
	Authorize(ctx context.Context, p *credential.Principal, req *decision.Request) (*decision.Response, error)
	AuthorizeBatch(ctx context.Context, p *credential.Principal, reqs []decision.Request) []decision.Outcome
}

// AuthorizeHandler is an API handler answering single authorization
// questions
type AuthorizeHandler struct {
	core DecisionMaker
}

// NewAuthorizeHandler creates and returns a new handler
func NewAuthorizeHandler(core DecisionMaker) AuthorizeHandler {
	return AuthorizeHandler{core: core}
}

// Handle answers POST /v1/authorize
func (ah AuthorizeHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIAuthorizeRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	resp, err := ah.core.Authorize(c.Request().Context(), p, req.ToDecisionRequest())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, model.NewAPIAuthorizeResponse(resp))
}

// BatchAuthorizeHandler is an API handler answering batches of
// authorization questions
type BatchAuthorizeHandler struct {
	core DecisionMaker
}

// NewBatchAuthorizeHandler creates and returns a new handler
func NewBatchAuthorizeHandler(core DecisionMaker) BatchAuthorizeHandler {
	return BatchAuthorizeHandler{core: core}
}

// Handle answers POST /v1/authorize/batch. Elements succeed or fail
// independently; the result list is order-aligned with the request list.
func (bah BatchAuthorizeHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIBatchAuthorizeRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	reqs := make([]decision.Request, 0, len(req.Requests))
	for i := range req.Requests {
		if verr := req.Requests[i].Validate(); verr != nil {
			// Per-element validation failures surface in the result slot.
			reqs = append(reqs, decision.Request{})
			continue
		}
		reqs = append(reqs, *req.Requests[i].ToDecisionRequest())
	}

	outcomes := bah.core.AuthorizeBatch(c.Request().Context(), p, reqs)

	results := make([]model.APIBatchResult, len(outcomes))
	for i, out := range outcomes {
		if out.Err != nil {
			results[i] = model.APIBatchResult{Error: problemFor(out.Err)}
			continue
		}
		results[i] = model.APIBatchResult{Response: model.NewAPIAuthorizeResponse(out.Response)}
	}
	return c.JSON(http.StatusOK, model.APIBatchAuthorizeResponse{Results: results})
}

// problemFor renders a per-element error as an embedded problem document.
func problemFor(err error) *util.Problem {
	if apiErr, ok := err.(*util.APIError); ok {
		return util.NewProblem(apiErr.Kind, apiErr.Detail)
	}
	return util.NewProblem(util.KindInternal, "")
}
