package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert so rows work on both
// Postgres and the embedded SQLite driver.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
