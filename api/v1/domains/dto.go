package domains

import (
	"landingops/internal/model"
	"landingops/internal/provision"
	"landingops/internal/tracking"
)

// RouteRequest is one route in a create or add-route request
type RouteRequest struct {
	PathSegment     string  `json:"pathSegment" binding:"required"`
	TemplateName    string  `json:"templateName" binding:"required"`
	OrganizationTag string  `json:"organizationTag"`
	ExternalCallID  *string `json:"externalCallId"`
	PhoneNumber     *string `json:"phoneNumber"`
	PlatformTag     string  `json:"platformTag"`
}

// UpdateRouteRequest replaces a route's mutable fields; the path itself
// is taken from the URL
type UpdateRouteRequest struct {
	TemplateName    string  `json:"templateName" binding:"required"`
	OrganizationTag string  `json:"organizationTag"`
	ExternalCallID  *string `json:"externalCallId"`
	PhoneNumber     *string `json:"phoneNumber"`
	PlatformTag     string  `json:"platformTag"`
}

// CreateRequest is the provisioning request body
type CreateRequest struct {
	DomainName      string         `json:"domainName" binding:"required"`
	OrganizationTag string         `json:"organizationTag"`
	ExternalID      string         `json:"externalId"`
	PlatformTag     string         `json:"platformTag"`
	Tags            []string       `json:"tags"`
	Routes          []RouteRequest `json:"routes"`
}

// TrackingInfo reports the tracking registration outcome
type TrackingInfo struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Domain string `json:"domain,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ProvisionResponse is the create response payload
type ProvisionResponse struct {
	*model.LandingDomain
	NameServers []string     `json:"nameServers"`
	Warnings    []string     `json:"warnings,omitempty"`
	Tracking    TrackingInfo `json:"tracking"`
}

// SSLStatusResponse is the certificate status payload
type SSLStatusResponse struct {
	DomainName     string          `json:"domainName"`
	SSLStatus      model.SSLStatus `json:"sslStatus"`
	SSLActivatedAt interface{}     `json:"sslActivatedAt"`
	SSLError       string          `json:"sslError,omitempty"`
}

func toRouteSpecs(routes []RouteRequest) []provision.RouteSpec {
	specs := make([]provision.RouteSpec, 0, len(routes))
	for _, r := range routes {
		specs = append(specs, provision.RouteSpec{
			PathSegment:     r.PathSegment,
			TemplateName:    r.TemplateName,
			OrganizationTag: r.OrganizationTag,
			ExternalCallID:  r.ExternalCallID,
			PhoneNumber:     r.PhoneNumber,
			PlatformTag:     r.PlatformTag,
		})
	}
	return specs
}

func toTrackingInfo(res *tracking.Result) TrackingInfo {
	if res == nil {
		return TrackingInfo{Status: tracking.StatusSkipped}
	}
	return TrackingInfo{
		Status: res.Status,
		ID:     res.ID,
		Domain: res.DomainName,
		Reason: res.Reason,
	}
}
