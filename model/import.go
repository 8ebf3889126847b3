package model

import "time"

// Source kinds.
const (
	SourceVideo    = "video"
	SourceChannel  = "channel"
	SourcePlaylist = "playlist"
)

// ImportRecord is one Import Ledger entry. SourceItemID is unique: at most one
// successful import per external item.
type ImportRecord struct {
	ID                 uint      `json:"-" gorm:"primaryKey"`
	SourceItemID       string    `json:"sourceItemId" gorm:"size:64;uniqueIndex;not null"`
	TrackID            string    `json:"trackId" gorm:"size:64;not null"`
	SourceURL          string    `json:"sourceUrl" gorm:"size:512"`
	ImportedAt         time.Time `json:"importedAt" gorm:"not null"`
	SourceCollectionID string    `json:"sourceCollectionId,omitempty" gorm:"size:255;index"`
	SourceType         string    `json:"sourceType" gorm:"size:16"`
}

// TableName 指定表名
func (ImportRecord) TableName() string {
	return "import_ledger"
}
