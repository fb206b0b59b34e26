package domain

import "time"

// RoundStatus is a nonce round's position in the commit-reveal lifecycle:
// Created -> Announced -> Active -> Expired -> Revealed. Created/Announced
// collapse to a single persisted row write in this implementation (the
// round is only ever observed externally once announced), so the
// persisted enum only tracks Active/Expired/Revealed.
type RoundStatus string

const (
	RoundActive   RoundStatus = "active"
	RoundExpired  RoundStatus = "expired"
	RoundRevealed RoundStatus = "revealed"
)

// Round is the durable record of one nonce commitment, per spec §3.
type Round struct {
	CommitEventID string `gorm:"primaryKey"`
	NonceBytes    [32]byte `gorm:"type:blob;size:32"`
	Commitment    [32]byte `gorm:"type:blob;size:32"`
	Status        RoundStatus `gorm:"index"`
	CreatedAt     time.Time
	ExpireAfter   time.Duration
	RevealAfter   time.Duration
	RevealEventID string
}

func (Round) TableName() string { return "nonce_rounds" }

// ExpireDeadline is the wall-clock instant at which an Active round must
// transition to Expired.
func (r Round) ExpireDeadline() time.Time { return r.CreatedAt.Add(r.ExpireAfter) }

// RevealDeadline is the wall-clock instant at which an Expired round must
// be revealed. RevealAfter is measured from the same CreatedAt anchor as
// ExpireAfter (spec §4.3: reveal-after >= expire-after, both timers start
// at round creation).
func (r Round) RevealDeadline() time.Time { return r.CreatedAt.Add(r.RevealAfter) }
