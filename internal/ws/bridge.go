package ws

import (
	"log"

	"home_energy/internal/aggregate"
)

// Bridge forwards aggregator load events to all dashboard clients.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

var _ aggregate.Observer = (*Bridge)(nil)

func (b *Bridge) OnSourceLoaded(r aggregate.SourceReport) {
	b.broadcast(TypeSourceLoaded, SourceLoadedPayload{
		Category: r.Category.String(),
		Source:   r.Source.String(),
		Records:  r.Records,
		Merged:   r.Merged,
		DupsOK:   r.DupsOK,
		Warnings: r.Warnings,
	})
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		log.Printf("Error encoding %s: %v", msgType, err)
		return
	}
	b.hub.Broadcast(msg)
}
