package persistence

import (
	"context"
	"errors"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
)

var ErrNotFound = errors.New("persistence: not found")

// Store is the durable side of the hub. Implementations must be safe for concurrent use.
type Store interface {
	SaveReading(ctx context.Context, r model.Reading) error
	// SaveAlert stores a new alert and returns its id.
	SaveAlert(ctx context.Context, a model.Alert) (int64, error)
	// UpsertDeviceState replaces the row keyed by DeviceName.
	UpsertDeviceState(ctx context.Context, s model.DeviceState) error
	AppendDeviceHistory(ctx context.Context, h model.DeviceHistory) error
	GetDeviceState(ctx context.Context, deviceName string) (model.DeviceState, error)
	ListDeviceStates(ctx context.Context) ([]model.DeviceState, error)
	// UnresolvedAlerts returns the newest unresolved alerts first.
	UnresolvedAlerts(ctx context.Context, limit int) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, id int64, resolvedBy string) error
	Ping(ctx context.Context) error
}

const defaultAlertLimit = 50

func alertLimit(n int) int {
	if n <= 0 || n > 1000 {
		return defaultAlertLimit
	}
	return n
}
