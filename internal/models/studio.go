package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Studio is the tenant boundary. It is read-only for booking flows.
type Studio struct {
	bun.BaseModel `bun:"table:studios,alias:st"`

	ID                    string    `json:"id" bun:"id,pk"`
	Slug                  string    `json:"slug" bun:"slug"`
	Name                  string    `json:"name" bun:"name"`
	Currency              string    `json:"currency" bun:"currency"`
	GatewayAccountID      string    `json:"-" bun:"gateway_account_id,nullzero"`
	GatewayChargesEnabled bool      `json:"-" bun:"gateway_charges_enabled"`
	CreatedAt             time.Time `json:"createdAt" bun:"created_at,nullzero,default:current_timestamp"`
}

// CanCharge reports whether the studio has a connected account able to take payments.
func (s *Studio) CanCharge() bool {
	return s.GatewayAccountID != "" && s.GatewayChargesEnabled
}

type ClassType struct {
	bun.BaseModel `bun:"table:class_types,alias:ct"`

	ID       string          `json:"id" bun:"id,pk"`
	StudioID string          `json:"studioId" bun:"studio_id"`
	Name     string          `json:"name" bun:"name"`
	Price    decimal.Decimal `json:"price" bun:"price,type:decimal(10,2)"`
}

type Teacher struct {
	bun.BaseModel `bun:"table:teachers,alias:te"`

	ID        string `json:"id" bun:"id,pk"`
	StudioID  string `json:"studioId" bun:"studio_id"`
	FirstName string `json:"firstName" bun:"first_name"`
	LastName  string `json:"lastName" bun:"last_name"`
}

func (t *Teacher) FullName() string {
	if t == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", t.FirstName, t.LastName))
}

type Location struct {
	bun.BaseModel `bun:"table:locations,alias:lo"`

	ID       string `json:"id" bun:"id,pk"`
	StudioID string `json:"studioId" bun:"studio_id"`
	Name     string `json:"name" bun:"name"`
}
