package cards

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/cardledger/internal/cardnumber"
	"github.com/congo-pay/cardledger/internal/expiry"
)

// Status is the stored lifecycle state of a card.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
	StatusExpired Status = "EXPIRED"
)

// MaxOwnerNameLength bounds the embossed holder name.
const MaxOwnerNameLength = 50

// Card is a stored-value bank card. The plain card number is never kept;
// NumberToken identifies it and Last4 is used for display.
type Card struct {
	ID          string
	OwnerID     string
	NumberToken string
	Last4       string
	OwnerName   string
	Expiration  expiry.YearMonth
	Status      Status
	Balance     decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MaskedNumber renders the card as "**** **** **** 1234".
func (c Card) MaskedNumber() string {
	return cardnumber.Mask(c.Last4)
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// sortKeys maps the accepted sort fields to their columns.
var sortKeys = map[string]string{
	"id":         "id",
	"balance":    "balance",
	"expiration": "expiration",
	"ownerName":  "owner_name",
	"status":     "status",
	"createdAt":  "created_at",
}

// PageRequest selects one zero-based page of an owner's cards. Sort is
// "field" or "field,asc|desc".
type PageRequest struct {
	Page int
	Size int
	Sort string
}

type sortOrder struct {
	field string
	desc  bool
}

func (p PageRequest) normalize() (PageRequest, sortOrder, error) {
	if p.Page < 0 {
		return p, sortOrder{}, fmt.Errorf("%w: page must not be negative", ErrInvalidPage)
	}
	switch {
	case p.Size <= 0:
		p.Size = defaultPageSize
	case p.Size > maxPageSize:
		p.Size = maxPageSize
	}
	if p.Page > math.MaxInt/p.Size {
		return p, sortOrder{}, fmt.Errorf("%w: page %d is out of range", ErrInvalidPage, p.Page)
	}

	order := sortOrder{field: "id"}
	if s := strings.TrimSpace(p.Sort); s != "" {
		field, dir, _ := strings.Cut(s, ",")
		field = strings.TrimSpace(field)
		if _, ok := sortKeys[field]; !ok {
			return p, sortOrder{}, fmt.Errorf("%w: unknown sort field %q", ErrInvalidPage, field)
		}
		order.field = field
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			order.desc = true
		default:
			return p, sortOrder{}, fmt.Errorf("%w: unknown sort direction %q", ErrInvalidPage, dir)
		}
	}
	return p, order, nil
}

func (p PageRequest) offset() int {
	return p.Page * p.Size
}

// Page is one slice of a larger result.
type Page[T any] struct {
	Items []T
	Page  int
	Size  int
	Total int
}

// TotalPages is the number of pages of Size needed to hold Total.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}
