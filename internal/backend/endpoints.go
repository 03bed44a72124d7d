package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/models"
)

// AuthResult is the data member of login and refresh responses
type AuthResult struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         models.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	raw, err := c.do(ctx, http.MethodPost, "/auth/login", authNone, func(r *resty.Request) error {
		r.SetBody(map[string]string{"email": email, "password": password})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeAuth(raw)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	raw, err := c.do(ctx, http.MethodPost, "/auth/refresh", authNone, func(r *resty.Request) error {
		r.SetBody(map[string]string{"refreshToken": refreshToken})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeAuth(raw)
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", authRequired, nil)
	return err
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/auth/me", authRequired, nil)
	if err != nil {
		return nil, err
	}

	// some deployments wrap the user as {user: {...}}
	var wrapped struct {
		User *models.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	user, err := decodeObject[models.User](raw)
	if err != nil {
		return nil, malformed("user", err)
	}
	return user, nil
}

func decodeAuth(raw json.RawMessage) (*AuthResult, error) {
	result, err := decodeObject[AuthResult](raw)
	if err != nil {
		return nil, malformed("auth response", err)
	}
	if result.Token == "" {
		return nil, apperror.Auth("the server did not return a session token", nil)
	}
	return result, nil
}

// ListReadings returns the reading history of a meter
func (c *Client) ListReadings(ctx context.Context, meterID models.ID) ([]models.MeterReading, error) {
	path := "/meters/" + url.PathEscape(meterID.String()) + "/readings"
	raw, err := c.do(ctx, http.MethodGet, path, authRequired, nil)
	if err != nil {
		return nil, err
	}
	readings, err := decodeList[models.MeterReading](raw)
	if err != nil {
		return nil, malformed("readings", err)
	}
	return readings, nil
}

// SubmitReading sends a new reading as a multipart form
func (c *Client) SubmitReading(ctx context.Context, p models.SubmissionPayload) (*models.MeterReading, error) {
	var photo *os.File
	defer func() {
		if photo != nil {
			photo.Close()
		}
	}()

	raw, err := c.do(ctx, http.MethodPost, "/meter-readings/new", authRequired, func(r *resty.Request) error {
		r.SetMultipartFormData(submissionFields(p))
		if p.PhotoPath == "" {
			return nil
		}
		f, err := os.Open(p.PhotoPath)
		if err != nil {
			return &apperror.Error{Kind: apperror.KindValidation, Message: "the meter photo could not be read", Err: err}
		}
		photo = f
		r.SetFileReader("evidencePhotoUrl", filepath.Base(p.PhotoPath), f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	reading, err := decodeObject[models.MeterReading](raw)
	if err != nil {
		c.logger.Warn("submission accepted but response was not a reading", zap.Error(err))
		return &models.MeterReading{MeterID: p.MeterID, Status: models.StatusPending}, nil
	}
	if reading.Status == "" {
		reading.Status = models.StatusPending
	}
	return reading, nil
}

func submissionFields(p models.SubmissionPayload) map[string]string {
	fields := map[string]string{
		"meterId":       p.MeterID.String(),
		"readingDate":   p.ReadingDate,
		"currentIndex":  p.CurrentIndex.String(),
		"previousIndex": p.PreviousIndex.String(),
		"consumption":   p.Consumption.String(),
		"accessReason":  string(p.AccessReason),
	}
	if p.Location != nil {
		fields["longitude"] = strconv.FormatFloat(p.Location.Longitude, 'f', -1, 64)
		fields["latitude"] = strconv.FormatFloat(p.Location.Latitude, 'f', -1, 64)
	}
	if p.Comments != "" {
		fields["comments"] = p.Comments
	}
	return fields
}

// SearchCustomers is the primary lookup by human-entered code
func (c *Client) SearchCustomers(ctx context.Context, code string) ([]models.Customer, error) {
	raw, err := c.do(ctx, http.MethodGet, "/customers/search", authOptional, func(r *resty.Request) error {
		r.SetQueryParam("code", code)
		return nil
	})
	if err != nil {
		return nil, err
	}
	customers, err := decodeOneOrMany[models.Customer](raw)
	if err != nil {
		return nil, malformed("customers", err)
	}
	return customers, nil
}

// ListConnectionRequests is the fallback lookup source
func (c *Client) ListConnectionRequests(ctx context.Context) ([]models.ConnectionRequest, error) {
	raw, err := c.do(ctx, http.MethodGet, "/connection-request", authOptional, func(r *resty.Request) error {
		r.SetQueryParam("all", "true")
		return nil
	})
	if err != nil {
		return nil, err
	}
	requests, err := decodeList[models.ConnectionRequest](raw)
	if err != nil {
		return nil, malformed("connection requests", err)
	}
	return requests, nil
}

func (c *Client) ListCustomerMeters(ctx context.Context, customerID models.ID) ([]models.Meter, error) {
	path := "/customers/" + url.PathEscape(customerID.String()) + "/meters"
	raw, err := c.do(ctx, http.MethodGet, path, authOptional, nil)
	if err != nil {
		return nil, err
	}
	meters, err := decodeList[models.Meter](raw)
	if err != nil {
		return nil, malformed("meters", err)
	}
	return meters, nil
}

func (c *Client) ListBills(ctx context.Context, customerID models.ID) ([]models.Bill, error) {
	path := "/customers/" + url.PathEscape(customerID.String()) + "/bills"
	raw, err := c.do(ctx, http.MethodGet, path, authOptional, nil)
	if err != nil {
		return nil, err
	}
	bills, err := decodeList[models.Bill](raw)
	if err != nil {
		return nil, malformed("bills", err)
	}
	return bills, nil
}

func (c *Client) CreateComplaint(ctx context.Context, complaint models.Complaint) (*models.Complaint, error) {
	raw, err := c.do(ctx, http.MethodPost, "/complaints", authOptional, func(r *resty.Request) error {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(complaint)
		return nil
	})
	if err != nil {
		return nil, err
	}
	created, err := decodeObject[models.Complaint](raw)
	if err != nil {
		return &complaint, nil
	}
	return created, nil
}
