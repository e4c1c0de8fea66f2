// Package tenant scopes directory data to a company and answers which
// modules a company has licensed.
package tenant

import (
	"time"

	"erpdir/internal/core/id"
)

// CompanyModule is one row of the external licensing table.
type CompanyModule struct {
	CompanyID id.ID     `db:"company_id" json:"companyId"`
	ModuleID  id.ID     `db:"module_id" json:"moduleId"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
