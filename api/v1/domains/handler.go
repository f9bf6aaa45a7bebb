// Package domains exposes the landing domain API: provisioning, listing,
// deprovisioning, route management and certificate operations.
package domains

import (
	"errors"
	"strconv"

	"landingops/api/v1/middleware"
	"landingops/internal/domainutil"
	"landingops/internal/httpx"
	"landingops/internal/provision"

	"github.com/gin-gonic/gin"
)

// Handler serves the domains and ssl route groups
type Handler struct {
	orch  *provision.Orchestrator
	store provision.Store
}

// NewHandler creates the domains handler
func NewHandler(orch *provision.Orchestrator, store provision.Store) *Handler {
	return &Handler{orch: orch, store: store}
}

// Create provisions a new landing domain end to end
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body: "+err.Error()))
		return
	}

	owner, _ := middleware.Actor(c)
	out, err := h.orch.Provision(c.Request.Context(), provision.Request{
		DomainName:      req.DomainName,
		Owner:           owner,
		OrganizationTag: req.OrganizationTag,
		ExternalID:      req.ExternalID,
		PlatformTag:     req.PlatformTag,
		Tags:            req.Tags,
		Routes:          toRouteSpecs(req.Routes),
	})
	if err != nil {
		httpx.FailErr(c, mapError(err))
		return
	}

	httpx.Created(c, ProvisionResponse{
		LandingDomain: out.Record,
		NameServers:   out.NameServers,
		Warnings:      out.Warnings,
		Tracking:      toTrackingInfo(out.Tracking),
	})
}

// List returns landing domains with optional filters
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	records, total, err := h.store.List(provision.ListFilter{
		Owner:           c.Query("owner"),
		OrganizationTag: c.Query("organizationTag"),
		PlatformTag:     c.Query("platformTag"),
		SSLStatus:       c.Query("sslStatus"),
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list domains", err))
		return
	}

	httpx.OKItems(c, records, total, page, pageSize)
}

// Get returns one landing domain with its routes
func (h *Handler) Get(c *gin.Context) {
	rec, err := h.store.GetByDomain(domainutil.Normalize(c.Param("domain")))
	if errors.Is(err, provision.ErrNotFound) {
		httpx.FailErr(c, httpx.ErrNotFound("domain not found"))
		return
	}
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to load domain", err))
		return
	}
	httpx.OK(c, rec)
}

// Delete deprovisions a landing domain and reports the cleanup summary
func (h *Handler) Delete(c *gin.Context) {
	summary, err := h.orch.Delete(c.Request.Context(), c.Param("domain"))
	if err != nil {
		appErr := mapError(err)
		if summary != nil {
			appErr = appErr.WithData(summary)
		}
		httpx.FailErr(c, appErr)
		return
	}
	httpx.OK(c, summary)
}

// AddRoute adds a route under a domain and republishes routing config
func (h *Handler) AddRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body: "+err.Error()))
		return
	}

	actor, isAdmin := middleware.Actor(c)
	route, warnings, err := h.orch.AddRoute(c.Request.Context(), c.Param("domain"), provision.RouteSpec{
		PathSegment:     req.PathSegment,
		TemplateName:    req.TemplateName,
		OrganizationTag: req.OrganizationTag,
		ExternalCallID:  req.ExternalCallID,
		PhoneNumber:     req.PhoneNumber,
		PlatformTag:     req.PlatformTag,
	}, actor, isAdmin)
	if err != nil {
		httpx.FailErr(c, mapError(err))
		return
	}

	httpx.Created(c, gin.H{
		"route":    route,
		"warnings": warnings,
	})
}

// UpdateRoute replaces a route's template and tags, then republishes
// routing config
func (h *Handler) UpdateRoute(c *gin.Context) {
	var req UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body: "+err.Error()))
		return
	}

	actor, isAdmin := middleware.Actor(c)
	route, warnings, err := h.orch.UpdateRoute(c.Request.Context(), c.Param("domain"), c.Param("path"), provision.RouteSpec{
		TemplateName:    req.TemplateName,
		OrganizationTag: req.OrganizationTag,
		ExternalCallID:  req.ExternalCallID,
		PhoneNumber:     req.PhoneNumber,
		PlatformTag:     req.PlatformTag,
	}, actor, isAdmin)
	if err != nil {
		httpx.FailErr(c, mapError(err))
		return
	}

	httpx.OK(c, gin.H{
		"route":    route,
		"warnings": warnings,
	})
}

// DeleteRoute removes a route and republishes routing config
func (h *Handler) DeleteRoute(c *gin.Context) {
	actor, isAdmin := middleware.Actor(c)
	warnings, err := h.orch.RemoveRoute(c.Request.Context(), c.Param("domain"), c.Param("path"), actor, isAdmin)
	if err != nil {
		httpx.FailErr(c, mapError(err))
		return
	}
	httpx.OK(c, gin.H{"warnings": warnings})
}

// RequestSSL re-runs certificate issuance for an existing domain
func (h *Handler) RequestSSL(c *gin.Context) {
	var req struct {
		DomainName string `json:"domainName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	rec, err := h.orch.RequestSSL(c.Request.Context(), req.DomainName)
	if err != nil {
		httpx.FailErr(c, mapError(err))
		return
	}
	httpx.OK(c, rec)
}

// SSLStatus reports the certificate state of a domain
func (h *Handler) SSLStatus(c *gin.Context) {
	rec, err := h.store.GetByDomain(domainutil.Normalize(c.Param("domain")))
	if errors.Is(err, provision.ErrNotFound) {
		httpx.FailErr(c, httpx.ErrNotFound("domain not found"))
		return
	}
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to load domain", err))
		return
	}

	httpx.OK(c, SSLStatusResponse{
		DomainName:     rec.DomainName,
		SSLStatus:      rec.SSLStatus,
		SSLActivatedAt: rec.SSLActivatedAt,
		SSLError:       rec.SSLError,
	})
}

// mapError translates provisioning failures into API errors
func mapError(err error) *httpx.AppError {
	var pErr *provision.Error
	if !errors.As(err, &pErr) {
		return httpx.ErrInternalError("provisioning failed", err)
	}

	switch pErr.Kind {
	case provision.KindValidation:
		return httpx.ErrParamInvalid(pErr.Message)
	case provision.KindNotFound:
		return httpx.ErrNotFound(pErr.Message)
	case provision.KindForbidden:
		return httpx.ErrForbidden(pErr.Message)
	case provision.KindConflict:
		return httpx.ErrAlreadyExists(pErr.Message)
	case provision.KindLocked:
		return httpx.ErrStateConflict(pErr.Message)
	case provision.KindAuth, provision.KindProvider, provision.KindIssuer, provision.KindTimeout:
		return httpx.ErrIntegration(pErr.Message, pErr.Domain, pErr.Details, pErr.Err)
	default:
		return httpx.ErrInternalError(pErr.Message, pErr.Err)
	}
}
