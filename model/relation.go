package model

import "time"

// Relation kinds. A pending row is owned by the *recipient* of the request:
// (B, A, pending) means A sits in B's inbound request set. Friendship is
// stored as two rows, one per direction. A blocked row is owned by the
// blocker and is directed.
const (
	RelationPending = 0
	RelationFriend  = 1
	RelationBlocked = 2
)

// Relation is one directed edge of the social graph.
// The composite unique index makes the store itself reject duplicate
// edges, so concurrent duplicate requests cannot both commit.
type Relation struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex:idx_relation;size:32;not null" json:"username"`
	Other     string    `gorm:"uniqueIndex:idx_relation;size:32;not null" json:"other"`
	Kind      int       `gorm:"uniqueIndex:idx_relation;not null" json:"kind"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
