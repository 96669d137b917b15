package gateway

import (
	"fmt"
	"math"
	"time"
)

// TokenResponse is returned by the login and refresh endpoints. The TTL is
// expressed in minutes; the refresh token itself travels in a cookie and is
// echoed here for diagnostics only.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresInMinutes int64  `json:"access_token_expires_in"`
}

// User is the authenticated user's profile.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ProductType describes a kind of product; expiry periods are ISO-8601
// durations as the backend stores them.
type ProductType struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	ExpPeriodBeforeOpening string `json:"exp_period_before_opening"`
	ExpPeriodAfterOpening  string `json:"exp_period_after_opening,omitempty"`
}

// Product is one physical item, the thing a QR code identifies.
type Product struct {
	ID             int64        `json:"id"`
	ProductTypeID  int64        `json:"product_type_id"`
	ManufacturedAt string       `json:"manufactured_at"`
	Amount         float64      `json:"amount"`
	ProductType    *ProductType `json:"product_type,omitempty"`
}

// ManufacturedTime parses the manufacture timestamp. The backend emits
// RFC3339; date-only values are accepted for hand-entered products.
func (p Product) ManufacturedTime() (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, p.ManufacturedAt); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02", p.ManufacturedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse manufactured_at %q: %w", p.ManufacturedAt, err)
	}
	return ts, nil
}

// ExpiresAt computes the expiry instant from the manufacture time and the
// product type's pre-opening expiry period.
func (p Product) ExpiresAt() (time.Time, error) {
	if p.ProductType == nil {
		return time.Time{}, fmt.Errorf("product %d has no product type", p.ID)
	}
	manufactured, err := p.ManufacturedTime()
	if err != nil {
		return time.Time{}, err
	}
	period, err := ParseISODuration(p.ProductType.ExpPeriodBeforeOpening)
	if err != nil {
		return time.Time{}, fmt.Errorf("product %d: %w", p.ID, err)
	}
	return manufactured.Add(period), nil
}

// DaysLeft reports whole days until expiry relative to now; negative when
// already expired.
func (p Product) DaysLeft(now time.Time) (int, error) {
	expiry, err := p.ExpiresAt()
	if err != nil {
		return 0, err
	}
	days := math.Floor(expiry.Sub(now).Hours() / 24)
	return int(days), nil
}

// FridgeProduct is one inventory record: a product placed in a fridge. The
// backend enforces at most one record per (fridge, product) pair.
type FridgeProduct struct {
	ID        int64    `json:"id"`
	FridgeID  int64    `json:"fridge_id"`
	ProductID int64    `json:"product_id"`
	Product   *Product `json:"product,omitempty"`
}

// FridgeProductList is the envelope of the fridge products listing.
type FridgeProductList struct {
	Items []FridgeProduct `json:"items"`
}

// Fridge is a shared refrigerator.
type Fridge struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CartProduct is one shopping-list entry.
type CartProduct struct {
	ID            int64        `json:"id"`
	ProductTypeID int64        `json:"product_type_id"`
	ProductType   *ProductType `json:"product_type,omitempty"`
}

// StatisticsEntry is one aggregated row of the consumption statistics.
type StatisticsEntry struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Statistics groups consumption statistics over the requested date range.
type Statistics struct {
	Added    []StatisticsEntry `json:"added"`
	Deleted  []StatisticsEntry `json:"deleted"`
	Exceeded []StatisticsEntry `json:"exceeded"`
}

// LoginRequest carries the login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest registers a new account.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// CreateFridgeProductRequest places a product into a fridge.
type CreateFridgeProductRequest struct {
	FridgeID  int64 `json:"fridge_id"`
	ProductID int64 `json:"product_id"`
}

// CreateProductRequest registers a physical item for QR generation.
type CreateProductRequest struct {
	ProductTypeID  int64   `json:"product_type_id"`
	ManufacturedAt string  `json:"manufactured_at"`
	Amount         float64 `json:"amount"`
}

// CreateCartProductRequest adds a product type to the shopping list.
type CreateCartProductRequest struct {
	ProductTypeID int64 `json:"product_type_id"`
}

// FridgeProductFilter narrows the fridge products listing. Nil fields are
// not sent.
type FridgeProductFilter struct {
	ProductIDEq *int64
	FridgeIDEq  *int64
}

// StatisticsFilter bounds the statistics date range. Nil fields are not
// sent; the backend treats absence as unbounded.
type StatisticsFilter struct {
	DateFrom *string
	DateTo   *string
}
