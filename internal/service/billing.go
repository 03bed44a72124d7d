package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/lookup"
	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/tools/timeparser"
)

// CustomerLookup resolves a customer code
type CustomerLookup interface {
	Lookup(ctx context.Context, code string) (*lookup.Result, error)
}

// BillingAPI is the billing part of the backend
type BillingAPI interface {
	ListBills(ctx context.Context, customerID models.ID) ([]models.Bill, error)
	CreateComplaint(ctx context.Context, complaint models.Complaint) (*models.Complaint, error)
}

// BillingService serves bill checks and complaints for a looked-up customer
type BillingService struct {
	lookup CustomerLookup
	api    BillingAPI
	logger *zap.Logger
}

func NewBillingService(l CustomerLookup, api BillingAPI, logger *zap.Logger) *BillingService {
	return &BillingService{
		lookup: l,
		api:    api,
		logger: logger,
	}
}

// Bills returns the customer's bills, newest first
func (s *BillingService) Bills(ctx context.Context, code string) (*models.Customer, []models.Bill, error) {
	result, err := s.lookup.Lookup(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	customer := result.Snapshot.Customer

	bills, err := s.api.ListBills(ctx, customer.ID)
	if err != nil {
		s.logger.Warn("failed to list bills", zap.String("customer_code", customer.Code), zap.Error(err))
		return nil, nil, err
	}
	SortBillsNewestFirst(bills)
	return &customer, bills, nil
}

// Complain files a complaint for the customer behind code
func (s *BillingService) Complain(ctx context.Context, code, subject, message string) (*models.Complaint, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" {
		return nil, apperror.Validation("a complaint subject is required")
	}
	if message == "" {
		return nil, apperror.Validation("a complaint message is required")
	}

	result, err := s.lookup.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	complaint, err := s.api.CreateComplaint(ctx, models.Complaint{
		CustomerID:  result.Snapshot.Customer.ID,
		Subject:     subject,
		Description: message,
	})
	if err != nil {
		s.logger.Warn("failed to file complaint", zap.String("customer_code", result.Snapshot.Customer.Code), zap.Error(err))
		return nil, err
	}

	s.logger.Info("complaint filed",
		zap.String("customer_code", result.Snapshot.Customer.Code),
		zap.String("complaint_id", complaint.ID.String()),
	)
	return complaint, nil
}

// SortBillsNewestFirst orders by issue date, then period text, both descending
func SortBillsNewestFirst(bills []models.Bill) {
	issued := func(b models.Bill) time.Time {
		t, err := timeparser.ParseReadingDate(b.IssuedAt, time.UTC)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	sort.SliceStable(bills, func(i, j int) bool {
		ti, tj := issued(bills[i]), issued(bills[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return bills[i].Period > bills[j].Period
	})
}
