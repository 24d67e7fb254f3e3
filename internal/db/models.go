package db

import "time"

// AdminSettings maps gateway.admin_settings: one credential row per admin
// covering both providers, overwritten in place on re-save.
type AdminSettings struct {
	AdminID                 string    `gorm:"column:admin_id;primaryKey" json:"admin_id"`
	APIKey                  string    `gorm:"column:api_key;type:text;not null" json:"api_key"`
	DeepLAPIKey             string    `gorm:"column:deepl_api_key;type:text;not null;default:''" json:"deepl_api_key"`
	TextEndpoint            string    `gorm:"column:text_translation_endpoint;type:text;not null" json:"text_translation_endpoint"`
	DocumentEndpoint        string    `gorm:"column:document_translation_endpoint;type:text;not null" json:"document_translation_endpoint"`
	Region                  string    `gorm:"column:region;type:text;not null" json:"region"`
	StorageConnectionString string    `gorm:"column:storage_connection_string;type:text;not null" json:"storage_connection_string"`
	UpdatedAt               time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()" json:"updated_at"`
}

func (AdminSettings) TableName() string { return "gateway.admin_settings" }

// Feedback maps gateway.feedback.
type Feedback struct {
	FeedbackID string    `gorm:"column:feedback_id;type:uuid;primaryKey" json:"feedback_id"`
	AdminID    string    `gorm:"column:admin_id;type:text;not null" json:"admin_id"`
	Rating     int       `gorm:"column:rating;type:integer;not null" json:"rating"`
	Comment    string    `gorm:"column:comment;type:text;not null" json:"comment"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()" json:"created_at"`
}

func (Feedback) TableName() string { return "gateway.feedback" }

func autoMigrateModels() []any {
	return []any{
		&AdminSettings{},
		&Feedback{},
	}
}
