package model

// Route represents one path under a landing domain, rendered into the
// nginx fragment as a location block serving a named template.
type Route struct {
	BaseModel
	LandingDomainID int     `gorm:"not null;uniqueIndex:idx_routes_domain_path" json:"-"`
	PathSegment     string  `gorm:"type:varchar(128);not null;uniqueIndex:idx_routes_domain_path" json:"pathSegment"`
	TemplateName    string  `gorm:"type:varchar(128);not null" json:"templateName"`
	OrganizationTag string  `gorm:"type:varchar(32)" json:"organizationTag"`
	ExternalCallID  *string `gorm:"type:varchar(64)" json:"externalCallId"`
	PhoneNumber     *string `gorm:"type:varchar(32)" json:"phoneNumber"`
	Creator         string  `gorm:"type:varchar(255);not null" json:"creator"`
	PlatformTag     string  `gorm:"type:varchar(32)" json:"platformTag"`
}

// TableName specifies the table name for Route model
func (Route) TableName() string {
	return "landing_domain_routes"
}
