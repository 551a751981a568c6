package model

import "time"

// NumberSequence backs human-readable document numbering (invoice numbers).
// Allocation is an atomic increment-and-read on the named row, never a
// count-existing-rows-plus-one.
type NumberSequence struct {
	Name      string    `gorm:"type:varchar(50);primaryKey" json:"name"`
	Value     int64     `gorm:"type:bigint;not null;default:0" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
