package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
)

// Account is a reporting account that queue generation fans out to
type Account struct {
	AccountID   string      `db:"account_id"`
	ViewID      string      `db:"view_id"`
	Credentials string      `db:"credentials"`
	VdpPatterns VdpPatterns `db:"vdp_url_patterns"`
}

// VdpPatterns is the jsonb column holding an account's VDP rules
type VdpPatterns []classifier.VdpPattern

// Scan implements sql.Scanner
func (p *VdpPatterns) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into VdpPatterns", src)
	}

	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]classifier.VdpPattern)(p))
}

// Value implements driver.Valuer
func (p VdpPatterns) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]classifier.VdpPattern(p))
}
