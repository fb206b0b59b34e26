package sqlitestore

// activeRoundPointer is the exactly-one-row table recording which round
// is currently active (spec §4.1's set_active_nonce pointer). Row id is
// always 1; gorm's FirstOrCreate/Save keep it a singleton.
type activeRoundPointer struct {
	ID            uint `gorm:"primaryKey"`
	CommitEventID string
}

func (activeRoundPointer) TableName() string { return "active_round" }

// latestExpiredRoundPointer is the exactly-one-row table recording the
// most recently expired round (spec §4.1's set_latest_expired_nonce
// pointer), independent of whether it has been revealed yet.
type latestExpiredRoundPointer struct {
	ID            uint `gorm:"primaryKey"`
	CommitEventID string
}

func (latestExpiredRoundPointer) TableName() string { return "latest_expired_round" }
