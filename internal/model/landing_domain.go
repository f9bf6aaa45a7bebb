package model

import (
	"time"

	"gorm.io/datatypes"
)

// SSLStatus represents the TLS lifecycle state of a landing domain
type SSLStatus string

const (
	SSLStatusPending SSLStatus = "pending"
	SSLStatusActive  SSLStatus = "active"
	SSLStatusFailed  SSLStatus = "failed"
	// SSLStatusEdge means TLS is terminated by Cloudflare Universal SSL
	// at the edge; no origin certificate is managed by us.
	SSLStatusEdge SSLStatus = "cf-universal"
)

// ProxyStatus represents whether Cloudflare edge proxying is active
type ProxyStatus string

const (
	ProxyStatusEnabled  ProxyStatus = "enabled"
	ProxyStatusDisabled ProxyStatus = "disabled"
)

// Organization tags accepted for landing domains and routes
var AllowedOrganizations = []string{"media", "search", "social"}

// Platform tags accepted for landing domains and routes
var AllowedPlatforms = []string{"Google", "Facebook", "TikTok", "Taboola", "Roku"}

// LandingDomain represents one provisioned landing domain. The row is
// inserted as pending/disabled before the long-running provisioning
// steps and flipped to its final state in one write; a committed row
// carries active/cf-universal only together with ProxyStatus enabled.
type LandingDomain struct {
	BaseModel
	DomainName      string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"domainName"`
	Owner           string         `gorm:"type:varchar(255);not null" json:"owner"`
	OrganizationTag string         `gorm:"type:varchar(32)" json:"organizationTag"`
	ExternalID      string         `gorm:"type:varchar(64)" json:"externalId"`
	PlatformTag     string         `gorm:"type:varchar(32)" json:"platformTag"`
	Tags            datatypes.JSON `gorm:"type:json" json:"tags"`
	ZoneID          string         `gorm:"type:varchar(64)" json:"zoneId"`
	OriginIP        string         `gorm:"type:varchar(45)" json:"originIp"`
	SSLStatus       SSLStatus      `gorm:"type:enum('pending','active','failed','cf-universal');default:'pending'" json:"sslStatus"`
	ProxyStatus     ProxyStatus    `gorm:"type:enum('enabled','disabled');default:'disabled'" json:"proxyStatus"`
	SSLActivatedAt  *time.Time     `json:"sslActivatedAt"`
	SSLError        string         `gorm:"type:varchar(255)" json:"sslError,omitempty"`
	TrackingID      *string        `gorm:"type:varchar(64)" json:"trackingRegistrationId"`
	TrackingDomain  *string        `gorm:"type:varchar(255)" json:"trackingDomain"`
	Routes          []Route        `gorm:"foreignKey:LandingDomainID" json:"routes"`
}

// TableName specifies the table name for LandingDomain model
func (LandingDomain) TableName() string {
	return "landing_domains"
}

// ValidOrganization reports whether tag is an accepted organization tag.
// Empty is allowed (the field is optional).
func ValidOrganization(tag string) bool {
	if tag == "" {
		return true
	}
	for _, o := range AllowedOrganizations {
		if o == tag {
			return true
		}
	}
	return false
}

// ValidPlatform reports whether tag is an accepted platform tag
func ValidPlatform(tag string) bool {
	for _, p := range AllowedPlatforms {
		if p == tag {
			return true
		}
	}
	return false
}
