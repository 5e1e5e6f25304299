package model

import "time"

// SettingsScopeGlobal is the only scope the service persists today.
const SettingsScopeGlobal = "global"

// SettingsRecord stores one serialized settings blob per scope.
type SettingsRecord struct {
	Scope     string    `db:"scope" gorm:"primaryKey;size:32"`
	Value     string    `db:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

func (SettingsRecord) TableName() string {
	return "share_settings"
}
