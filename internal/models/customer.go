package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meter is a physical water meter attached to a customer
type Meter struct {
	ID                ID              `json:"id"`
	SerialNumber      string          `json:"serialNumber,omitempty"`
	CustomerID        ID              `json:"customerId,omitempty"`
	InstallationIndex decimal.Decimal `json:"installationIndex"`
	Status            string          `json:"status,omitempty"`
}

// Customer is a water utility customer
type Customer struct {
	ID      ID     `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Meter   *Meter `json:"meter,omitempty"`
}

// ConnectionRequest links a customer to a meter; used as a lookup fallback
type ConnectionRequest struct {
	ID       ID       `json:"id"`
	Status   string   `json:"status,omitempty"`
	Customer Customer `json:"customer"`
	Meter    *Meter   `json:"meter,omitempty"`
}

// CustomerSnapshot is the resolved customer/meter pair bridging lookup and capture
type CustomerSnapshot struct {
	Customer      Customer        `json:"customer"`
	Meter         Meter           `json:"meter"`
	PreviousIndex decimal.Decimal `json:"previousIndex"`
	ResolvedAt    time.Time       `json:"resolvedAt"`
}

// Bill is one billing period of a customer
type Bill struct {
	ID         ID              `json:"id"`
	CustomerID ID              `json:"customerId"`
	Period     string          `json:"period"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	DueDate    string          `json:"dueDate,omitempty"`
	IssuedAt   string          `json:"issuedAt,omitempty"`
}

// Complaint is a customer-filed complaint
type Complaint struct {
	ID          ID     `json:"id,omitempty"`
	CustomerID  ID     `json:"customerId"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// User is the authenticated agent
type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
