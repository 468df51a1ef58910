package cvsite

import "github.com/oklog/ulid/v2"

// IDGenerator provides identifiers for pipeline runs.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator generates lexically sortable run IDs.
type ULIDGenerator struct{}

func (ULIDGenerator) NewID() string {
	return ulid.Make().String()
}
