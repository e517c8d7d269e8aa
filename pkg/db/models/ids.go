package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *CreditLogEntry) BeforeCreate(*gorm.DB) error { ensureID(&m.ID); return nil }
func (m *RFQ) BeforeCreate(*gorm.DB) error            { ensureID(&m.ID); return nil }
func (m *Quote) BeforeCreate(*gorm.DB) error          { ensureID(&m.ID); return nil }
func (m *ChatRoom) BeforeCreate(*gorm.DB) error       { ensureID(&m.ID); return nil }
func (m *Order) BeforeCreate(*gorm.DB) error          { ensureID(&m.ID); return nil }
func (m *Invoice) BeforeCreate(*gorm.DB) error        { ensureID(&m.ID); return nil }
func (m *Notification) BeforeCreate(*gorm.DB) error   { ensureID(&m.ID); return nil }
func (m *OutboxEvent) BeforeCreate(*gorm.DB) error    { ensureID(&m.ID); return nil }
func (m *OutboxDLQ) BeforeCreate(*gorm.DB) error      { ensureID(&m.ID); return nil }
