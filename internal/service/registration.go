package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/repository"
)

// ErrMissingColumn is returned when a registration CSV lacks a required header.
var ErrMissingColumn = errors.New("registration csv is missing a required column")

// Registration is one student's delivery target, read from the sign-up form export.
type Registration struct {
	Email    string
	Endpoint string
	Secret   string
	RepoURL  string
}

var requiredColumns = []string{"email", "endpoint", "secret"}

// ReadRegistrationsCSV parses a header-first CSV with at least email, endpoint and secret
// columns. Column order is free and unknown columns are ignored. Rows without an email
// are skipped.
func ReadRegistrationsCSV(r io.Reader) ([]Registration, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []Registration{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	registrations := make([]Registration, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		email := normalizeEmail(field(record, "email"))
		if email == "" {
			continue
		}
		registrations = append(registrations, Registration{
			Email:    email,
			Endpoint: field(record, "endpoint"),
			Secret:   field(record, "secret"),
			RepoURL:  field(record, "repo_url"),
		})
	}

	return registrations, nil
}

// FormService manages student registrations.
type FormService interface {
	Register(ctx context.Context, req dto.FormEntryRequest) (dto.FormEntryResponse, error)
	Import(ctx context.Context, registrations []Registration) SweepSummary
	Registrations(ctx context.Context) ([]Registration, error)
}

type formService struct {
	repo      repository.FormEntryRepository
	validator *validator.Validate
	now       func() time.Time
	logger    zerolog.Logger
}

// NewFormService constructs the registration service.
func NewFormService(repo repository.FormEntryRepository, validate *validator.Validate, logger zerolog.Logger) FormService {
	return &formService{
		repo:      repo,
		validator: validate,
		now:       time.Now,
		logger:    logger.With().Str("component", "form_service").Logger(),
	}
}

func (s *formService) Register(ctx context.Context, req dto.FormEntryRequest) (dto.FormEntryResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	req.RepoURL = strings.TrimSpace(req.RepoURL)

	if err := s.validator.Struct(req); err != nil {
		return dto.FormEntryResponse{}, newValidationError(err)
	}

	entry := models.FormEntry{
		Timestamp: s.now().UTC(),
		Email:     req.Email,
		Endpoint:  req.Endpoint,
		Secret:    req.Secret,
		RepoURL:   req.RepoURL,
	}
	if err := s.repo.Upsert(ctx, &entry); err != nil {
		return dto.FormEntryResponse{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Info().Str("email", maskEmailAddress(entry.Email)).Msg("registration stored")
	return dto.NewFormEntryResponse(entry), nil
}

func (s *formService) Import(ctx context.Context, registrations []Registration) SweepSummary {
	var summary SweepSummary
	for _, reg := range registrations {
		_, err := s.Register(ctx, dto.FormEntryRequest{
			Email:    reg.Email,
			Endpoint: reg.Endpoint,
			Secret:   reg.Secret,
			RepoURL:  reg.RepoURL,
		})
		if err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				s.logger.Warn().Str("email", maskEmailAddress(reg.Email)).Str("field", validationErr.Field).Msg("registration skipped")
				summary.record(outcomeSkipped, "register")
				continue
			}
			s.logger.Error().Err(err).Str("email", maskEmailAddress(reg.Email)).Msg("registration failed")
			summary.record(outcomeError, "register")
			continue
		}
		summary.record(outcomeProcessed, "register")
	}
	s.logger.Info().Int("processed", summary.Processed).Int("skipped", summary.Skipped).Int("errors", summary.Errors).Msg("registration import complete")
	return summary
}

func (s *formService) Registrations(ctx context.Context) ([]Registration, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	registrations := make([]Registration, 0, len(entries))
	for _, entry := range entries {
		registrations = append(registrations, Registration{
			Email:    entry.Email,
			Endpoint: entry.Endpoint,
			Secret:   entry.Secret,
			RepoURL:  entry.RepoURL,
		})
	}
	return registrations, nil
}
