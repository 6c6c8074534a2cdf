package models

import "time"

// Generation is the journal row for one cache generation.
type Generation struct {
	Tag         string
	CorePaths   []string
	InstalledAt time.Time
	ActivatedAt *time.Time
	DeletedAt   *time.Time
}

func (g Generation) Live() bool {
	return g.DeletedAt == nil
}
