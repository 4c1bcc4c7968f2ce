package models

import "time"

// Setting is a runtime override for one configuration key. Absence of a row
// means "use the compiled-in default".
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
