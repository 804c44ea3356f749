package storage

// NotFoundError is returned when a message doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "message not found"
	}

	return "message not found: " + e.ID
}
