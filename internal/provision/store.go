package provision

import (
	"errors"
	"time"

	"landingops/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound is returned by Store lookups for missing rows
var ErrNotFound = errors.New("record not found")

// ListFilter narrows List results
type ListFilter struct {
	Owner           string
	OrganizationTag string
	PlatformTag     string
	SSLStatus       string
	Page            int
	PageSize        int
}

// Store is the persistence surface the orchestrator needs. Backed by
// gorm in production, by an in-memory fake in tests.
type Store interface {
	GetByDomain(name string) (*model.LandingDomain, error)
	List(filter ListFilter) ([]model.LandingDomain, int64, error)
	Create(rec *model.LandingDomain) error
	Update(rec *model.LandingDomain) error
	UpdateSSL(domainName string, status model.SSLStatus, sslError string, activatedAt *time.Time) error
	Delete(id int) error

	CreateRoute(route *model.Route) error
	UpdateRoute(route *model.Route) error
	DeleteRoute(domainID int, pathSegment string) (int64, error)
	GetRoutes(domainID int) ([]model.Route, error)

	ListBySSLStatus(status model.SSLStatus, limit int) ([]model.LandingDomain, error)
}

// GormStore implements Store on MySQL
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the MySQL-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetByDomain(name string) (*model.LandingDomain, error) {
	var rec model.LandingDomain
	err := s.db.Preload("Routes").Where("domain_name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) List(filter ListFilter) ([]model.LandingDomain, int64, error) {
	query := s.db.Model(&model.LandingDomain{})

	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}
	if filter.OrganizationTag != "" {
		query = query.Where("organization_tag = ?", filter.OrganizationTag)
	}
	if filter.PlatformTag != "" {
		query = query.Where("platform_tag = ?", filter.PlatformTag)
	}
	if filter.SSLStatus != "" {
		query = query.Where("ssl_status = ?", filter.SSLStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var records []model.LandingDomain
	err := query.Preload("Routes").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (s *GormStore) Create(rec *model.LandingDomain) error {
	return s.db.Create(rec).Error
}

func (s *GormStore) Update(rec *model.LandingDomain) error {
	return s.db.Save(rec).Error
}

func (s *GormStore) UpdateSSL(domainName string, status model.SSLStatus, sslError string, activatedAt *time.Time) error {
	updates := map[string]interface{}{
		"ssl_status": status,
		"ssl_error":  sslError,
	}
	if activatedAt != nil {
		updates["ssl_activated_at"] = activatedAt
	}
	return s.db.Model(&model.LandingDomain{}).
		Where("domain_name = ?", domainName).
		Updates(updates).Error
}

func (s *GormStore) Delete(id int) error {
	if err := s.db.Where("landing_domain_id = ?", id).Delete(&model.Route{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&model.LandingDomain{}, id).Error
}

func (s *GormStore) CreateRoute(route *model.Route) error {
	return s.db.Create(route).Error
}

func (s *GormStore) UpdateRoute(route *model.Route) error {
	return s.db.Save(route).Error
}

func (s *GormStore) DeleteRoute(domainID int, pathSegment string) (int64, error) {
	res := s.db.Where("landing_domain_id = ? AND path_segment = ?", domainID, pathSegment).
		Delete(&model.Route{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) GetRoutes(domainID int) ([]model.Route, error) {
	var routes []model.Route
	err := s.db.Where("landing_domain_id = ?", domainID).Order("id").Find(&routes).Error
	return routes, err
}

func (s *GormStore) ListBySSLStatus(status model.SSLStatus, limit int) ([]model.LandingDomain, error) {
	var records []model.LandingDomain
	err := s.db.Where("ssl_status = ?", status).Order("ssl_activated_at").Limit(limit).Find(&records).Error
	return records, err
}
