package core

import (
	"github.com/google/uuid"

	"pkt.systems/tabdeck/schema"
)

func newTabID() schema.TabID {
	return schema.TabID(uuid.NewString())
}
