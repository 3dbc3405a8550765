package engine

import "github.com/luizcieslak/lofi-radio/internal/broadcast"

// Status is a point-in-time, read-only snapshot of the running engine.
type Status struct {
	IsRunning       bool                  `json:"isRunning"`
	ListenerCount   int                   `json:"listenerCount"`
	SubscriberCount int                   `json:"subscriberCount"`
	NowPlaying      *broadcast.NowPlaying `json:"nowPlaying,omitempty"`
}
