package models

import "time"

// Class owns opportunities and enrollments. DefaultCapacity seeds the
// capacity of opportunities created without an explicit one.
type Class struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	DefaultCapacity int       `db:"default_capacity" json:"default_capacity"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDeletionCounts reports rows removed per table by a class cascade delete.
type ClassDeletionCounts struct {
	Opportunities int `json:"opportunities"`
	Bids          int `json:"bids"`
	Enrollments   int `json:"enrollments"`
	TokenHistory  int `json:"token_history"`
}
