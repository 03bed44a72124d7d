package lookup

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/backend"
	"github.com/septivank/water-meter-agent/internal/eligibility"
	"github.com/septivank/water-meter-agent/internal/models"
)

// API is the subset of the backend used to resolve customers and meters
type API interface {
	SearchCustomers(ctx context.Context, code string) ([]models.Customer, error)
	ListConnectionRequests(ctx context.Context) ([]models.ConnectionRequest, error)
	ListCustomerMeters(ctx context.Context, customerID models.ID) ([]models.Meter, error)
	ListReadings(ctx context.Context, meterID models.ID) ([]models.MeterReading, error)
}

// SnapshotStore keeps the last resolved customer for downstream commands
type SnapshotStore interface {
	SaveCurrentCustomer(ctx context.Context, snapshot models.CustomerSnapshot) error
}

// Result is a resolved customer/meter pair with its initial eligibility
type Result struct {
	Snapshot    models.CustomerSnapshot
	Readings    []models.MeterReading
	Eligibility eligibility.State
}

// Adapter resolves a human-entered customer code to a customer and meter
type Adapter struct {
	api       API
	evaluator *eligibility.Evaluator
	store     SnapshotStore
	logger    *zap.Logger
}

func NewAdapter(api API, evaluator *eligibility.Evaluator, st SnapshotStore, logger *zap.Logger) *Adapter {
	return &Adapter{
		api:       api,
		evaluator: evaluator,
		store:     st,
		logger:    logger,
	}
}

// Lookup resolves code and evaluates the meter's eligibility from its full reading history.
// A failed history fetch still resolves, with a not-validated eligibility.
func (a *Adapter) Lookup(ctx context.Context, code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.Validation("customer code is required")
	}
	logger := a.logger.With(zap.String("customer_code", code))

	customer, meter, err := a.resolve(ctx, code, logger)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("meter_id", meter.ID.String()))

	readings, fetchErr := a.api.ListReadings(ctx, meter.ID)
	if fetchErr != nil {
		logger.Warn("failed to fetch reading history", zap.Error(fetchErr))
	}
	elig := a.evaluator.EvaluateFetch(readings, fetchErr)

	snapshot := models.CustomerSnapshot{
		Customer:      *customer,
		Meter:         *meter,
		PreviousIndex: a.previousIndex(readings, meter),
		ResolvedAt:    a.evaluator.Now(),
	}
	snapshot.Customer.Meter = nil

	if a.store != nil {
		if err := a.store.SaveCurrentCustomer(ctx, snapshot); err != nil {
			logger.Warn("failed to store current customer", zap.Error(err))
		}
	}

	logger.Info("customer resolved",
		zap.String("previous_index", snapshot.PreviousIndex.String()),
		zap.Bool("blocked", elig.IsBlocked),
		zap.Bool("status_validated", elig.StatusValidated),
	)

	return &Result{
		Snapshot:    snapshot,
		Readings:    readings,
		Eligibility: elig,
	}, nil
}

// previousIndex takes the latest reading's index, else the installation index, else zero
func (a *Adapter) previousIndex(readings []models.MeterReading, meter *models.Meter) decimal.Decimal {
	if latest, ok := a.evaluator.Latest(readings); ok {
		return latest.LastIndex()
	}
	return meter.InstallationIndex
}

func (a *Adapter) resolve(ctx context.Context, code string, logger *zap.Logger) (*models.Customer, *models.Meter, error) {
	customer, err := a.searchPrimary(ctx, code)
	if err != nil {
		if !primaryUnavailable(err) {
			return nil, nil, err
		}
		logger.Info("primary customer search unavailable, using connection requests", zap.Error(err))
		customer = nil
	}

	var meter *models.Meter
	if customer == nil {
		req, err := a.searchConnectionRequests(ctx, code)
		if err != nil {
			return nil, nil, err
		}
		c := req.Customer
		customer = &c
		meter = req.Meter
	}
	if meter == nil {
		meter = customer.Meter
	}

	if meter == nil {
		meter, err = a.customerMeter(ctx, customer)
		if err != nil {
			return nil, nil, err
		}
	}
	return customer, meter, nil
}

func (a *Adapter) searchPrimary(ctx context.Context, code string) (*models.Customer, error) {
	customers, err := a.api.SearchCustomers(ctx, code)
	if err != nil {
		return nil, err
	}
	for i := range customers {
		if strings.EqualFold(strings.TrimSpace(customers[i].Code), code) {
			return &customers[i], nil
		}
	}
	return nil, apperror.NotFound(fmt.Sprintf("no customer found for code %s", code))
}

func (a *Adapter) searchConnectionRequests(ctx context.Context, code string) (*models.ConnectionRequest, error) {
	requests, err := a.api.ListConnectionRequests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range requests {
		if strings.EqualFold(strings.TrimSpace(requests[i].Customer.Code), code) {
			return &requests[i], nil
		}
	}
	return nil, apperror.NotFound(fmt.Sprintf("no customer found for code %s", code))
}

func (a *Adapter) customerMeter(ctx context.Context, customer *models.Customer) (*models.Meter, error) {
	meters, err := a.api.ListCustomerMeters(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, apperror.NotFound(fmt.Sprintf("no meter is registered for customer %s", customer.Code))
	}
	for i := range meters {
		if strings.EqualFold(meters[i].Status, "active") {
			return &meters[i], nil
		}
	}
	return &meters[0], nil
}

// primaryUnavailable reports whether the primary search failed in a way the fallback can cover
func primaryUnavailable(err error) bool {
	if apperror.KindOf(err) == apperror.KindNotFound {
		return true
	}
	switch backend.StatusCode(err) {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}
