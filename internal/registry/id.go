package registry

import "github.com/google/uuid"

func newConnID() string {
	return uuid.New().String()
}
