package models

import (
	"fmt"
	"time"
)

// Record is a keyed, opaque value persisted on the local device.
type Record struct {
	id        string
	key       string
	value     []byte
	createdAt time.Time
	updatedAt time.Time
}

var _ Model = (*Record)(nil)

// NewRecord creates an unsaved [Record] for key holding value.
func NewRecord(key string, value []byte) *Record {
	now := time.Now()
	return &Record{key: key, value: value, createdAt: now, updatedAt: now}
}

func (r *Record) ID() string           { return r.id }
func (r *Record) Key() string          { return r.key }
func (r *Record) Value() []byte        { return r.value }
func (r *Record) CreatedAt() time.Time { return r.createdAt }
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

func (r *Record) SetID(id string)          { r.id = id }
func (r *Record) SetValue(v []byte)        { r.value = v }
func (r *Record) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *Record) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// Validate checks the record has a key and a value.
func (r *Record) Validate() error {
	if r.key == "" {
		return fmt.Errorf("record key is required")
	}
	if r.value == nil {
		return fmt.Errorf("record value is required")
	}
	return nil
}
