package store

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator produces lexically sortable document ids.
type ULIDGenerator struct{}

func (ULIDGenerator) New() string { return strings.ToLower(ulid.Make().String()) }
