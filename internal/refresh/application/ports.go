package application

import (
	"context"
	"time"

	refresh "tariffwatch/internal/refresh/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

// IntervalSource fetches raw unit-rate records.
type IntervalSource interface {
	FetchUnitRates(ctx context.Context) ([]tariff.RawInterval, error)
}

// MetadataSource fetches descriptive product information.
type MetadataSource interface {
	FetchProduct(ctx context.Context) (*tariff.Product, error)
	FetchStandingCharge(ctx context.Context, now time.Time) (*tariff.StandingCharge, error)
}

// TransitionNotifier delivers detected phase transitions.
type TransitionNotifier interface {
	Notify(ctx context.Context, transition refresh.Transition) error
}
