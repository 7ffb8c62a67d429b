package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Instrument represents a tradable security in the master catalog, identified
// by its exchange-qualified code (e.g. "600000.SH"). Rows are created and
// updated only by the catalog sync; delisted instruments are marked inactive
// and never deleted so that watch items and rules keep valid references.
type Instrument struct {
	Base
	Code        string     `gorm:"uniqueIndex;not null;size:16" json:"code"`
	Symbol      string     `gorm:"not null;size:16;index" json:"symbol"`
	Name        string     `gorm:"not null;size:100" json:"name"`
	Area        string     `gorm:"size:50" json:"area,omitempty"`
	Industry    string     `gorm:"size:50" json:"industry,omitempty"`
	Market      string     `gorm:"size:20" json:"market,omitempty"`
	ListDate    *time.Time `json:"list_date,omitempty"`
	IsActive    bool       `gorm:"default:true;index" json:"is_active"`
	Fingerprint string     `gorm:"size:64" json:"-"`
}

// ComputeFingerprint returns the SHA-256 hex digest over the mutable catalog
// fields. The sync compares fingerprints to decide whether an upstream record
// changed without diffing field by field.
func (i *Instrument) ComputeFingerprint() string {
	listDate := ""
	if i.ListDate != nil {
		listDate = i.ListDate.UTC().Format("20060102")
	}
	payload := strings.Join([]string{i.Name, i.Area, i.Industry, i.Market, listDate}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
