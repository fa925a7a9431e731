package loyalty

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProgramService manages merchant loyalty programs
type ProgramService struct {
	programRepo loyalty.ProgramRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewProgramService creates a new ProgramService
func NewProgramService(programRepo loyalty.ProgramRepository, log *zap.Logger) *ProgramService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgramService{
		programRepo: programRepo,
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new active program
func (s *ProgramService) Create(ctx context.Context, tenantID uuid.UUID, req CreateProgramRequest) (*ProgramResponse, error) {
	def := loyalty.ProgramDefinition{
		Name:              req.Name,
		Type:              loyalty.ProgramType(req.Type),
		Goal:              req.Goal,
		RewardDescription: req.RewardDescription,
		OneShot:           req.OneShot,
	}
	if req.CashbackRate != nil {
		def.CashbackRate = *req.CashbackRate
	}
	if req.InitialBalance != nil {
		def.InitialBalance = *req.InitialBalance
	} else {
		def.InitialBalance = decimal.Zero
	}

	program, err := loyalty.NewProgram(tenantID, def)
	if err != nil {
		return nil, err
	}
	now := s.now()
	program.CreatedAt = now
	program.UpdatedAt = now

	if err := s.programRepo.Create(ctx, program); err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Loyalty program created",
		zap.String("program_id", program.ID.String()),
		zap.String("type", string(program.Type)),
	)
	resp := ToProgramResponse(program)
	return &resp, nil
}

// GetByID returns a program
func (s *ProgramService) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*ProgramResponse, error) {
	program, err := s.programRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToProgramResponse(program)
	return &resp, nil
}

// List returns the tenant's programs, optionally only the active ones
func (s *ProgramService) List(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]ProgramResponse, error) {
	programs, err := s.programRepo.FindAll(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, err
	}
	return ToProgramResponses(programs), nil
}

// UpdateRewardDescription changes the only descriptive field a program has
func (s *ProgramService) UpdateRewardDescription(ctx context.Context, tenantID, id uuid.UUID, req UpdateProgramRequest) (*ProgramResponse, error) {
	return s.modify(ctx, tenantID, id, func(p *loyalty.Program, now time.Time) error {
		return p.UpdateRewardDescription(req.RewardDescription, now)
	})
}

// Disable soft-disables a program. Enrollments keep their balances.
func (s *ProgramService) Disable(ctx context.Context, tenantID, id uuid.UUID) (*ProgramResponse, error) {
	return s.modify(ctx, tenantID, id, func(p *loyalty.Program, now time.Time) error {
		p.Disable(now)
		return nil
	})
}

// Enable re-activates a program
func (s *ProgramService) Enable(ctx context.Context, tenantID, id uuid.UUID) (*ProgramResponse, error) {
	return s.modify(ctx, tenantID, id, func(p *loyalty.Program, now time.Time) error {
		p.Enable(now)
		return nil
	})
}

func (s *ProgramService) modify(ctx context.Context, tenantID, id uuid.UUID, fn func(p *loyalty.Program, now time.Time) error) (*ProgramResponse, error) {
	program, err := s.programRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	version := program.Version
	if err := fn(program, s.now()); err != nil {
		return nil, err
	}
	// No-op toggles leave the version alone and need no write
	if program.Version != version {
		if err := s.programRepo.SaveWithLock(ctx, program); err != nil {
			return nil, err
		}
	}
	resp := ToProgramResponse(program)
	return &resp, nil
}
