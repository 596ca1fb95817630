package model

import "fmt"

// Status is the on-chain lifecycle state of a token launch.
type Status int32

const (
	StatusInitialized Status = 0
	StatusActive      Status = 1
	StatusPaused      Status = 2
	StatusEnded       Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "🟡 Initialized"
	case StatusActive:
		return "🟢 Active"
	case StatusPaused:
		return "🔴 Paused"
	case StatusEnded:
		return "⚫ Ended"
	default:
		return fmt.Sprintf("Unknown (%d)", int32(s))
	}
}
