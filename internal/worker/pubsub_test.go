package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationboard/stationboard/internal/worker"
	"github.com/stationboard/stationboard/pkg/geo"
)

type fakeCommander struct {
	refreshes int
	locations []geo.Coordinate
	err       error
}

func (f *fakeCommander) RefreshNow() {
	f.refreshes++
}

func (f *fakeCommander) ChangeLocation(_ context.Context, c geo.Coordinate) error {
	f.locations = append(f.locations, c)
	return f.err
}

func TestDispatch_RefreshNow(t *testing.T) {
	target := &fakeCommander{}

	err := worker.Dispatch(context.Background(), target, []byte(`{"command":"refresh_now"}`))

	require.NoError(t, err)
	assert.Equal(t, 1, target.refreshes)
	assert.Empty(t, target.locations)
}

func TestDispatch_ChangeLocation(t *testing.T) {
	target := &fakeCommander{}

	err := worker.Dispatch(context.Background(), target,
		[]byte(`{"command":"change_location","lat":42.3564,"lon":-71.0624}`))

	require.NoError(t, err)
	require.Len(t, target.locations, 1)
	assert.InDelta(t, 42.3564, target.locations[0].Lat, 1e-9)
	assert.InDelta(t, -71.0624, target.locations[0].Lon, 1e-9)
	assert.Zero(t, target.refreshes)
}

func TestDispatch_ChangeLocationFailure(t *testing.T) {
	target := &fakeCommander{err: errors.New("resolver unavailable")}

	err := worker.Dispatch(context.Background(), target,
		[]byte(`{"command":"change_location","lat":42.3564,"lon":-71.0624}`))

	require.Error(t, err)
	assert.NotErrorIs(t, err, worker.ErrMalformedCommand)
	assert.NotErrorIs(t, err, worker.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "resolver unavailable")
}

func TestDispatch_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"invalid json", `{"command":`, worker.ErrMalformedCommand},
		{"missing lat", `{"command":"change_location","lon":-71.06}`, worker.ErrMalformedCommand},
		{"missing lon", `{"command":"change_location","lat":42.35}`, worker.ErrMalformedCommand},
		{"latitude out of range", `{"command":"change_location","lat":95,"lon":-71.06}`, worker.ErrMalformedCommand},
		{"unknown command", `{"command":"reboot"}`, worker.ErrUnknownCommand},
		{"empty command", `{}`, worker.ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &fakeCommander{}

			err := worker.Dispatch(context.Background(), target, []byte(tt.payload))

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, target.refreshes)
			assert.Empty(t, target.locations)
		})
	}
}
