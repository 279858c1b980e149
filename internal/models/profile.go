package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Profile is the candidate profile owned by the account service. Only the
// resume-related columns are mapped.
type Profile struct {
	UserID   string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	FullName string `gorm:"column:full_name;type:text" json:"full_name"`
	CVText   string `gorm:"column:cv_text;type:text" json:"cv_text"`

	Skills     pq.StringArray `gorm:"column:skills;type:text[]" json:"skills"`
	Experience datatypes.JSON `gorm:"column:experience;type:jsonb" json:"experience"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
