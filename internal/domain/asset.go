package domain

import "time"

// Asset is one stored output image of a task. Index is the 1-based position of the task item
// within the batch.
type Asset struct {
	ID         string
	TaskID     string
	ResultName string
	Index      int
	StorageKey string
	Width      int
	Height     int
	Bytes      int64
	Checksum   string
	CreatedAt  time.Time
}
