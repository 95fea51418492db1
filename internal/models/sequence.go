package models

// Sequence is a named monotonic counter advanced atomically in the
// database (upsert-returning). Pool numbers come from here instead of
// a compute-from-max query, which would race under concurrent creation.
type Sequence struct {
	Name  string `gorm:"type:varchar(50);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

func (Sequence) TableName() string {
	return "sequences"
}

const SeqPoolNumber = "pool_number"
