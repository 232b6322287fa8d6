package service

import (
	"context"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/model"
	"github.com/VmalRaj-Dev/limetto/internal/repository"
	"github.com/VmalRaj-Dev/limetto/internal/subscription"

	"github.com/rs/zerolog"
)

// ProfileView is a profile together with its dashboard classification.
type ProfileView struct {
	Profile *model.Profile
	Details subscription.Details
}

type ProfileService interface {
	Create(ctx context.Context, p *model.Profile) (*model.Profile, error)
	Get(ctx context.Context, id string) (*ProfileView, error)
}

type profileService struct {
	profiles repository.ProfileRepository
	notifier NotificationService
	now      func() time.Time
	logger   zerolog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, notifier NotificationService, logger zerolog.Logger) ProfileService {
	return &profileService{
		profiles: profiles,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With().Str("service", "ProfileService").Logger(),
	}
}

// Create stores a new profile with no subscription and sends the welcome
// notification.
func (s *profileService) Create(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	existing, err := s.profiles.GetProfileByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrProfileExists
	}
	p.SubscriptionStatus = model.StatusNone
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	notifyBestEffort(ctx, s.notifier, s.logger, Notification{
		Kind:     NotifyWelcome,
		UserID:   p.ID,
		Email:    p.Email,
		UserName: p.Name,
	})
	return p, nil
}

func (s *profileService) Get(ctx context.Context, id string) (*ProfileView, error) {
	p, err := s.profiles.GetProfileByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return &ProfileView{Profile: p, Details: subscription.Classify(p, s.now())}, nil
}
