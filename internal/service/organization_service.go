package service

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// OrganizationService serves read-only tenant lookups.
type OrganizationService struct {
	orgs repository.OrganizationRepository
}

// NewOrganizationService constructs the service.
func NewOrganizationService(orgs repository.OrganizationRepository) *OrganizationService {
	return &OrganizationService{orgs: orgs}
}

// GetOrganization returns the organization with orgID.
func (s *OrganizationService) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	if err := requireID("org_id", orgID); err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("organization", map[string]any{"org_id": orgID})
		}
		return nil, storeError(err)
	}
	return org, nil
}
