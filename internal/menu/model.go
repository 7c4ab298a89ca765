package menu

import "time"

type MenuItem struct {
	ID         uint
	Name       string
	PriceCents int64
	Stock      int
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
