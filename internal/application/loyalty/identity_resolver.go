package loyalty

import (
	"context"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
)

// IdentityResolver maps free-text customer identifiers to enrollments. It
// keeps no state of its own.
type IdentityResolver struct {
	enrollmentRepo loyalty.EnrollmentRepository
	programRepo    loyalty.ProgramRepository
}

// NewIdentityResolver creates a new IdentityResolver
func NewIdentityResolver(enrollmentRepo loyalty.EnrollmentRepository, programRepo loyalty.ProgramRepository) *IdentityResolver {
	return &IdentityResolver{
		enrollmentRepo: enrollmentRepo,
		programRepo:    programRepo,
	}
}

// Resolve returns every enrollment the tenant holds for raw, oldest first.
// An identifier with no enrollments resolves to an empty list.
func (r *IdentityResolver) Resolve(ctx context.Context, tenantID uuid.UUID, raw string) ([]ResolvedEnrollment, error) {
	identifier, _, err := loyalty.NormalizeIdentifier(raw)
	if err != nil {
		return nil, err
	}
	enrollments, err := r.enrollmentRepo.FindByIdentifier(ctx, tenantID, identifier)
	if err != nil {
		return nil, err
	}

	programs := make(map[uuid.UUID]*loyalty.Program)
	out := make([]ResolvedEnrollment, 0, len(enrollments))
	for i := range enrollments {
		e := &enrollments[i]
		p, ok := programs[e.ProgramID]
		if !ok {
			p, err = r.programRepo.FindByID(ctx, tenantID, e.ProgramID)
			if err != nil {
				return nil, err
			}
			programs[e.ProgramID] = p
		}
		out = append(out, ResolvedEnrollment{
			EnrollmentResponse: ToEnrollmentResponse(e, p),
			Program:            ToProgramResponse(p),
		})
	}
	return out, nil
}

// Classify reports the shape of raw and whether credential-reset style
// flows can reach it. It never fails; blank input is "unknown".
func (r *IdentityResolver) Classify(raw string) IdentifierClassification {
	c := IdentifierClassification{Identifier: raw, Kind: string(loyalty.IdentifierKindUnknown)}
	normalized, kind, err := loyalty.NormalizeIdentifier(raw)
	if err != nil {
		return c
	}
	c.Normalized = normalized
	c.Kind = string(kind)
	c.SupportsCredentialReset = kind == loyalty.IdentifierKindEmail
	return c
}
