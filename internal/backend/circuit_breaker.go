// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
	"github.com/tomtom215/shiptrack/internal/models"
)

// breakerName labels the backend circuit breaker in logs and metrics.
const breakerName = "backend-api"

// CircuitBreakerClient wraps Client with the circuit breaker pattern so an
// unavailable backend is not flooded with snapshot loads while it recovers.
//
// Only transport failures and 5xx responses count against the breaker. A 4xx
// response (including 401) means the backend is up and answering.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// Ensure CircuitBreakerClient implements API
var _ API = (*CircuitBreakerClient)(nil)

// BreakerSettings tunes the breaker. Zero values select the defaults:
// 3 half-open probes, 1 minute window, 30 second open timeout, trip at 60%
// failures over at least 5 requests.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

// NewCircuitBreakerClient wraps client with a circuit breaker.
func NewCircuitBreakerClient(client *Client, bs BreakerSettings) *CircuitBreakerClient {
	if bs.MaxRequests == 0 {
		bs.MaxRequests = 3
	}
	if bs.Interval == 0 {
		bs.Interval = time.Minute
	}
	if bs.Timeout == 0 {
		bs.Timeout = 30 * time.Second
	}
	if bs.MinRequests == 0 {
		bs.MinRequests = 5
	}
	if bs.FailureRate == 0 {
		bs.FailureRate = 0.6
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bs.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= bs.FailureRate {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
		IsSuccessful: isSuccessful,
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: breakerName}
}

// isSuccessful decides whether err counts against the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) && se.ClientError() {
		return true
	}
	return false
}

// State returns the breaker state.
func (cbc *CircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

// execute runs fn under the breaker and records the outcome.
func (cbc *CircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := cbc.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
		logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
	}
	return result, err
}

// castResult type-asserts the breaker result.
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// ListTrackers lists trackers with circuit breaker protection.
func (cbc *CircuitBreakerClient) ListTrackers(ctx context.Context) ([]models.Tracker, error) {
	return castResult[[]models.Tracker](cbc.execute(func() (any, error) {
		return cbc.client.ListTrackers(ctx)
	}))
}

// CreateTracker creates a tracker with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateTracker(ctx context.Context, req *models.TrackerCreate) (*models.Tracker, error) {
	return castResult[*models.Tracker](cbc.execute(func() (any, error) {
		return cbc.client.CreateTracker(ctx, req)
	}))
}

// DeleteTracker deletes a tracker with circuit breaker protection.
func (cbc *CircuitBreakerClient) DeleteTracker(ctx context.Context, id string) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.client.DeleteTracker(ctx, id)
	})
	return err
}

// ListShipments lists shipments with circuit breaker protection.
func (cbc *CircuitBreakerClient) ListShipments(ctx context.Context) ([]models.Shipment, error) {
	return castResult[[]models.Shipment](cbc.execute(func() (any, error) {
		return cbc.client.ListShipments(ctx)
	}))
}

// CreateShipment creates a shipment with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateShipment(ctx context.Context, req *models.ShipmentCreate) (*models.Shipment, error) {
	return castResult[*models.Shipment](cbc.execute(func() (any, error) {
		return cbc.client.CreateShipment(ctx, req)
	}))
}

// GetShipment fetches a shipment with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	return castResult[*models.Shipment](cbc.execute(func() (any, error) {
		return cbc.client.GetShipment(ctx, id)
	}))
}

// DeleteShipment deletes a shipment with circuit breaker protection.
func (cbc *CircuitBreakerClient) DeleteShipment(ctx context.Context, id string) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.client.DeleteShipment(ctx, id)
	})
	return err
}

// GetAsset fetches an asset with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	return castResult[*models.Asset](cbc.execute(func() (any, error) {
		return cbc.client.GetAsset(ctx, id)
	}))
}

// TrackerHistory fetches sensor history with circuit breaker protection.
func (cbc *CircuitBreakerClient) TrackerHistory(ctx context.Context, trackerID string, r models.DateRange) ([]map[string]any, error) {
	return castResult[[]map[string]any](cbc.execute(func() (any, error) {
		return cbc.client.TrackerHistory(ctx, trackerID, r)
	}))
}

// Alerts fetches alert summaries with circuit breaker protection.
func (cbc *CircuitBreakerClient) Alerts(ctx context.Context, f AlertFilter) ([]models.AlertRecord, error) {
	return castResult[[]models.AlertRecord](cbc.execute(func() (any, error) {
		return cbc.client.Alerts(ctx, f)
	}))
}

// AlertEvents fetches alert events with circuit breaker protection.
func (cbc *CircuitBreakerClient) AlertEvents(ctx context.Context, f AlertFilter) ([]models.AlertEvent, error) {
	return castResult[[]models.AlertEvent](cbc.execute(func() (any, error) {
		return cbc.client.AlertEvents(ctx, f)
	}))
}

// AlertPresets fetches alert presets with circuit breaker protection.
func (cbc *CircuitBreakerClient) AlertPresets(ctx context.Context, shipmentID string) ([]models.AlertPreset, error) {
	return castResult[[]models.AlertPreset](cbc.execute(func() (any, error) {
		return cbc.client.AlertPresets(ctx, shipmentID)
	}))
}

// SetAlertPresets stores alert presets with circuit breaker protection.
func (cbc *CircuitBreakerClient) SetAlertPresets(ctx context.Context, shipmentID string, presets []models.AlertPreset) ([]models.AlertPreset, error) {
	return castResult[[]models.AlertPreset](cbc.execute(func() (any, error) {
		return cbc.client.SetAlertPresets(ctx, shipmentID, presets)
	}))
}

// Analytics fetches carrier analytics with circuit breaker protection.
func (cbc *CircuitBreakerClient) Analytics(ctx context.Context, carrier string, r models.DateRange) (*models.AnalyticsSummary, error) {
	return castResult[*models.AnalyticsSummary](cbc.execute(func() (any, error) {
		return cbc.client.Analytics(ctx, carrier, r)
	}))
}
