package bastion

import "github.com/xraph/bastion/id"

// ID is the identifier type shared by all Bastion entities.
type ID = id.ID
