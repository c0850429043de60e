package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type EventInput struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"startsAt"`
	PriceAmount int64     `json:"priceAmount"`
	Currency    string    `json:"currency"`
	Capacity    int       `json:"capacity"`
	Published   bool      `json:"published"`
}

// EventService serves the public event listing and the admin CRUD surface.
type EventService interface {
	ListPublished(ctx context.Context) ([]model.Event, error)
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListAll(ctx context.Context) ([]model.Event, error)
	Create(ctx context.Context, input *EventInput) (*model.Event, error)
	Update(ctx context.Context, id string, input *EventInput) (*model.Event, error)
	Delete(ctx context.Context, id string) error
}

type DefaultEventService struct {
	events repository.EventRepository
}

func NewEventService(events repository.EventRepository) EventService {
	return &DefaultEventService{events: events}
}

func (s *DefaultEventService) ListPublished(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx, true)
}

func (s *DefaultEventService) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	event, err := s.events.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if event == nil || !event.Published {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *DefaultEventService) ListAll(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx, false)
}

func (s *DefaultEventService) Create(ctx context.Context, input *EventInput) (*model.Event, error) {
	if err := validateEventInput(input); err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:          uuid.New().String(),
		Slug:        input.Slug,
		Title:       input.Title,
		Description: input.Description,
		StartsAt:    input.StartsAt,
		PriceAmount: input.PriceAmount,
		Currency:    strings.ToUpper(input.Currency),
		Capacity:    input.Capacity,
		Published:   input.Published,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *DefaultEventService) Update(ctx context.Context, id string, input *EventInput) (*model.Event, error) {
	if err := validateEventInput(input); err != nil {
		return nil, err
	}

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	event.Slug = input.Slug
	event.Title = input.Title
	event.Description = input.Description
	event.StartsAt = input.StartsAt
	event.PriceAmount = input.PriceAmount
	event.Currency = strings.ToUpper(input.Currency)
	event.Capacity = input.Capacity
	event.Published = input.Published

	if err := s.events.Update(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *DefaultEventService) Delete(ctx context.Context, id string) error {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if event == nil {
		return ErrEventNotFound
	}
	return s.events.Delete(ctx, id)
}

func validateEventInput(input *EventInput) error {
	if input.Title == "" || input.Slug == "" || input.StartsAt.IsZero() {
		return ErrMissingFields
	}
	if !slugPattern.MatchString(input.Slug) {
		return ErrMissingFields
	}
	if input.PriceAmount < 0 || input.Capacity < 0 {
		return ErrInvalidAmount
	}
	if input.Currency == "" {
		input.Currency = "GBP"
	}
	return nil
}
