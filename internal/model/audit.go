package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateItem     = "CREATE_INVENTORY_ITEM"
	ActionUpdateItem     = "UPDATE_INVENTORY_ITEM"
	ActionDeleteItem     = "DELETE_INVENTORY_ITEM"
	ActionAdjustStock    = "ADJUST_STOCK"
	ActionCreateInvoice  = "CREATE_INVOICE"
	ActionApproveInvoice = "APPROVE_INVOICE"
	ActionCancelInvoice  = "CANCEL_INVOICE"
	ActionSendInvoice    = "SEND_INVOICE"
	ActionRecordPayment  = "RECORD_PAYMENT"
	ActionCreateClient   = "CREATE_CLIENT"
	ActionUpdateClient   = "UPDATE_CLIENT"
	ActionDeleteClient   = "DELETE_CLIENT"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated job
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/number)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
