package interfaces

const PersistenceServiceID ServiceID = "Persistence"

type IPersistenceService interface {
	// Persist writes every document whose store changed since the last write.
	Persist() error
}
