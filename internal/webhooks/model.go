package webhooks

import (
	"time"

	"github.com/jmerrifield20/govledger/internal/eventlog"
)

// Target is a single webhook endpoint. Kinds filters the journal entry kinds
// delivered to it; empty means every kind except genesis.
type Target struct {
	URL    string   `mapstructure:"url"`
	Secret string   `mapstructure:"secret"`
	Kinds  []string `mapstructure:"kinds"`
}

// Event is the JSON body POSTed to a target.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Entry     *eventlog.Entry `json:"entry"`
}

func (t Target) wants(kind eventlog.Kind) bool {
	if kind == eventlog.KindGenesis {
		return false
	}
	if len(t.Kinds) == 0 {
		return true
	}
	for _, k := range t.Kinds {
		if k == string(kind) {
			return true
		}
	}
	return false
}
