package store

import "time"

type Project struct {
	ID        int64
	Ref       string
	Slug      string
	Name      string
	Access    string
	Structure []byte
	UpdatedAt time.Time
}

// Entry is the row of an entry or, when Branch is set, a branch entry. The
// document columns are read through the storage adapter, not here.
type Entry struct {
	ID            int64
	ProjectID     int64
	UUID          string
	Branch        bool
	FormRef       string
	ParentUUID    string
	ParentFormRef string
	OwnerEntryID  int64
	OwnerUUID     string
	OwnerInputRef string
	UserID        int64
	DeviceID      string
	Platform      string
	Title         string
	CreatedAt     time.Time
	UploadedAt    time.Time
}

type TitleHit struct {
	UUID    string
	FormRef string
	Title   string
	Branch  bool
}
