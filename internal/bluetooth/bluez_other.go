//go:build !linux

package bluetooth

import (
	"context"
	"io"

	"github.com/google/uuid"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
)

// BlueZAdapter is only available on Linux
type BlueZAdapter struct{}

// NewBlueZAdapter always fails outside Linux; use the TCP adapter instead
func NewBlueZAdapter(logger *logging.Logger) (*BlueZAdapter, error) {
	return nil, apperrors.NewBluetoothUnavailableError("bluez requires linux", nil)
}

func (a *BlueZAdapter) Close() error { return nil }

func (a *BlueZAdapter) PairedDevices(ctx context.Context) ([]Device, error) {
	return nil, apperrors.ErrBluetoothUnavailable
}

func (a *BlueZAdapter) Dial(ctx context.Context, device Device, service uuid.UUID) (io.ReadWriteCloser, error) {
	return nil, apperrors.ErrBluetoothUnavailable
}

func (a *BlueZAdapter) Listen(ctx context.Context, service uuid.UUID, name string) (Listener, error) {
	return nil, apperrors.ErrBluetoothUnavailable
}
