package types

import (
	"github.com/uptrace/bun"
)

// RepTotal is the signed reputation total of one user.
type RepTotal struct {
	bun.BaseModel `bun:"table:rep_totals,alias:rt"`

	UserID uint64 `bun:"user_id,pk"`        // Discord user id
	Total  int64  `bun:"rep_total,notnull"` // Sum of all rating deltas
}
