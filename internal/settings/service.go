package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"gorm.io/gorm"
)

// Known setting keys. A row with one of these keys overrides the compiled-in
// default; absence means the default applies.
const (
	KeyPaymentMethod       = "payment_method"
	KeyInviteExpiryMinutes = "invite_expiry_minutes"
	KeyCheckoutImageFileID = "checkout_image_file_id"
	KeyCheckoutChannelID   = "checkout_channel_id"
)

var knownKeys = map[string]struct{}{
	KeyPaymentMethod:       {},
	KeyInviteExpiryMinutes: {},
	KeyCheckoutImageFileID: {},
	KeyCheckoutChannelID:   {},
}

// Service resolves effective runtime settings: DB override first, then the
// environment-level fallback from config.
type Service interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Unset(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)

	PaymentMethod(ctx context.Context) (enums.PaymentMethod, error)
	InviteExpiry(ctx context.Context) (time.Duration, error)
	CheckoutImageFileID(ctx context.Context) (string, error)
	CheckoutChannelID(ctx context.Context) (int64, error)
}

type service struct {
	repo Repository
	cfg  config.PaymentsConfig
}

// NewService builds the settings service with the required dependencies.
func NewService(repo Repository, cfg config.PaymentsConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &service{repo: repo, cfg: cfg}, nil
}

func (s *service) Get(ctx context.Context, key string) (string, bool, error) {
	setting, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load setting")
	}
	return setting.Value, true, nil
}

func (s *service) Set(ctx context.Context, key, value string) error {
	if _, ok := knownKeys[key]; !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown setting key %q", key))
	}
	if err := validateValue(key, value); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, key, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store setting")
	}
	return nil
}

func (s *service) Unset(ctx context.Context, key string) error {
	if _, ok := knownKeys[key]; !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown setting key %q", key))
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete setting")
	}
	return nil
}

func (s *service) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settings")
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (s *service) PaymentMethod(ctx context.Context) (enums.PaymentMethod, error) {
	value, ok, err := s.Get(ctx, KeyPaymentMethod)
	if err != nil {
		return "", err
	}
	if !ok {
		value = s.cfg.DefaultPaymentMethod
	}
	method, err := enums.ParsePaymentMethod(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve payment method")
	}
	return method, nil
}

func (s *service) InviteExpiry(ctx context.Context) (time.Duration, error) {
	value, ok, err := s.Get(ctx, KeyInviteExpiryMinutes)
	if err != nil {
		return 0, err
	}
	minutes := s.cfg.InviteExpiryMinutes
	if ok {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("invalid %s override %q", KeyInviteExpiryMinutes, value))
		}
		minutes = parsed
	}
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (s *service) CheckoutImageFileID(ctx context.Context) (string, error) {
	value, ok, err := s.Get(ctx, KeyCheckoutImageFileID)
	if err != nil {
		return "", err
	}
	if !ok {
		return s.cfg.CheckoutImageFileID, nil
	}
	return value, nil
}

// CheckoutChannelID returns 0 when no channel is configured anywhere, which
// callers treat as "channel method unavailable".
func (s *service) CheckoutChannelID(ctx context.Context) (int64, error) {
	value, ok, err := s.Get(ctx, KeyCheckoutChannelID)
	if err != nil {
		return 0, err
	}
	if !ok {
		value = s.cfg.CheckoutChannelID
	}
	if value == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse checkout channel id")
	}
	return id, nil
}

func validateValue(key, value string) error {
	switch key {
	case KeyPaymentMethod:
		if _, err := enums.ParsePaymentMethod(value); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment_method must be channel or direct")
		}
	case KeyInviteExpiryMinutes:
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invite_expiry_minutes must be a positive integer")
		}
	case KeyCheckoutChannelID:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "checkout_channel_id must be an integer chat id")
		}
	}
	return nil
}
