package interfaces

import "ywwzwb/imagearchive/models"

const IngestServiceID ServiceID = "Ingest"

type IngestStats struct {
	QueueLength int    `json:"queueLength"`
	Busy        bool   `json:"busy"`
	Processed   uint64 `json:"processed"`
	Dropped     uint64 `json:"dropped"`
}

type IIngestService interface {
	Enqueue(item models.PendingMedia)
	Stats() IngestStats
}
