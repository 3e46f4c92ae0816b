package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityStatus is the lifecycle state shared by farms and users.
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "active"
	EntityStatusArchived EntityStatus = "archived"
)

// Farm is a physical farm tasks are assigned to. Name is unique.
type Farm struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	ImageURL  *string      `json:"image_url"`
	Address   *string      `json:"address"`
	Location  *string      `json:"location"`
	Plot      *string      `json:"plot"`
	Status    EntityStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Crop is a crop grown on one or more farms. Name is unique.
type Crop struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a task category (one of the allowed task names). Name is unique.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a platform account. Username is the identity spreadsheets
// reference field users by.
type User struct {
	ID           uuid.UUID    `json:"id"`
	Name         *string      `json:"name"`
	Username     string       `json:"username"`
	Email        *string      `json:"email"`
	PhoneNumber  *string      `json:"phone_number"`
	ProfileImage *string      `json:"profile_image"`
	Address      *string      `json:"address"`
	CreatedBy    *uuid.UUID   `json:"created_by"`
	Status       EntityStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// FarmCrop associates a crop with a farm.
type FarmCrop struct {
	ID     uuid.UUID `json:"id"`
	FarmID uuid.UUID `json:"farm_id"`
	CropID uuid.UUID `json:"crop_id"`
}
