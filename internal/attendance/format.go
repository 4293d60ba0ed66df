package attendance

import (
	"fmt"
	"time"
)

// FormatDuration renders d as "Hh Mm Ss", truncated to whole seconds.
// Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", secs/3600, secs/60%60, secs%60)
}

// EndMessage is the text sent when a session ends without the user asking.
func EndMessage(st Status) string {
	switch st.Reason {
	case ReasonPresenceLost:
		return fmt.Sprintf("<@%s> left the voice channel. Session closed after %s.", st.UserID, FormatDuration(st.Elapsed))
	case ReasonShutdown:
		return fmt.Sprintf("<@%s>, clockcord is shutting down. Session closed after %s.", st.UserID, FormatDuration(st.Elapsed))
	default:
		return fmt.Sprintf("<@%s> clocked out after %s.", st.UserID, FormatDuration(st.Elapsed))
	}
}

// Embed colors, as 0xRRGGBB.
const (
	ColorWorking = 0x00FF00
	ColorPaused  = 0xFFA500
	ColorEnded   = 0xFF0000
	ColorHistory = 0x0000FF
)

// Color returns the embed color for s.
func (s State) Color() int {
	switch s {
	case StatePaused:
		return ColorPaused
	case StateEnded:
		return ColorEnded
	default:
		return ColorWorking
	}
}
