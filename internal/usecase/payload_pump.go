package usecase

import (
	"aegisroom/internal/ports"
)

// pumpRoomPayloads drains the room's payload channel on a single goroutine
// so every handler runs to completion in receipt order. onClosed runs once
// the channel closes.
func pumpRoomPayloads(
	room ports.Room,
	handle func(ports.Payload),
	onClosed func(),
	done chan struct{},
) {
	defer close(done)

	for payload := range room.Payloads() {
		handle(payload)
	}
	if onClosed != nil {
		onClosed()
	}
}
