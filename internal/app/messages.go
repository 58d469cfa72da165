package app

import "time"

// TickMsg triggers a snapshot refresh.
type TickMsg time.Time

// HaltMsg reports that the firmware stopped after a handler fault.
type HaltMsg struct {
	Err error
}
