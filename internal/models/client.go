package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Client is a studio's customer, unique per (studio, email).
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:cl"`

	ID                string    `json:"id" bun:"id,pk"`
	StudioID          string    `json:"studioId" bun:"studio_id"`
	Email             string    `json:"email" bun:"email"`
	FirstName         string    `json:"firstName" bun:"first_name"`
	LastName          string    `json:"lastName" bun:"last_name"`
	GatewayCustomerID string    `json:"-" bun:"gateway_customer_id,nullzero"`
	Credits           int       `json:"credits" bun:"credits"`
	CreatedAt         time.Time `json:"createdAt" bun:"created_at,nullzero,default:current_timestamp"`
}
