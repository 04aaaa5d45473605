// Package service contains the business logic layer.
//
// This file implements managed-person records: the people the user
// journals about. Creating one is metered (people_managed).
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

// MaxPersonNameLength bounds a person's name.
const MaxPersonNameLength = 120

// PersonService manages the user's people records.
type PersonService interface {
	// Create adds a person. Metered against people_managed.
	Create(ctx context.Context, userID uuid.UUID, params domain.CreatePersonParams) (*domain.Person, error)

	// Get fetches one of the user's people.
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Person, error)

	// List returns all of the user's people, oldest first.
	List(ctx context.Context, userID uuid.UUID) ([]domain.Person, error)
}

type personService struct {
	repo        repository.PersonStore
	entitlement EntitlementService
	usage       UsageService
	logger      *slog.Logger
}

// NewPersonService creates a new PersonService.
func NewPersonService(repo repository.PersonStore, entitlement EntitlementService, usage UsageService, logger *slog.Logger) PersonService {
	return &personService{
		repo:        repo,
		entitlement: entitlement,
		usage:       usage,
		logger:      logger,
	}
}

func (s *personService) Create(ctx context.Context, userID uuid.UUID, params domain.CreatePersonParams) (*domain.Person, error) {
	const op = "person.create"

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, domain.Invalid(op, "A name is required")
	}
	if len(name) > MaxPersonNameLength {
		return nil, domain.Invalid(op, "Name is too long")
	}

	decision, err := s.entitlement.Check(ctx, userID, domain.CounterPeopleManaged)
	if err != nil {
		return nil, err
	}
	if err := denialError(op, "Adding more people", decision); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	person := &domain.Person{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Relation:  strings.TrimSpace(params.Relation),
		Notes:     strings.TrimSpace(params.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreatePerson(ctx, person); err != nil {
		return nil, domain.Unavailable(err, op)
	}

	if err := s.usage.Record(ctx, userID, domain.CounterPeopleManaged); err != nil {
		s.logger.Error("failed to record person usage", "error", err, "user_id", userID)
	}

	s.logger.Info("person created", "user_id", userID, "person_id", person.ID)
	return person, nil
}

func (s *personService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Person, error) {
	const op = "person.get"
	person, err := s.repo.GetPerson(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "person", id.String())
		}
		return nil, domain.Unavailable(err, op)
	}
	return person, nil
}

func (s *personService) List(ctx context.Context, userID uuid.UUID) ([]domain.Person, error) {
	const op = "person.list"
	people, err := s.repo.ListPeople(ctx, userID)
	if err != nil {
		return nil, domain.Unavailable(err, op)
	}
	return people, nil
}
