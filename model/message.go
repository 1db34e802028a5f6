package model

import "time"

// Message is one point-to-point chat message. Messages are immutable and
// never deleted; history for a pair is ordered by (CreatedAt, ID) so two
// messages stored within the same instant keep their insertion order.
type Message struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Sender    string    `gorm:"index:idx_msg_sender;size:32;not null" json:"sender"`
	Receiver  string    `gorm:"index:idx_msg_receiver;size:32;not null" json:"receiver"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime:milli;index" json:"timestamp"`
}
