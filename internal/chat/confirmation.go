package chat

import "refactchat/internal/models"

// Confirmation tracks tool calls waiting on the user.
type Confirmation struct {
	Pause        bool
	PauseReasons []models.PauseReason
	// WasInteracted is set once the user answered the current pause, so the
	// resend that follows skips the confirmation check.
	WasInteracted bool
}

// PausedToolCallIDs returns the distinct tool call ids named by the pause reasons.
func (c Confirmation) PausedToolCallIDs() []string {
	seen := make(map[string]bool, len(c.PauseReasons))
	var ids []string
	for _, r := range c.PauseReasons {
		if r.ToolCallID == "" || seen[r.ToolCallID] {
			continue
		}
		seen[r.ToolCallID] = true
		ids = append(ids, r.ToolCallID)
	}
	return ids
}

// HasDenial reports a pause that cannot be confirmed, only rejected.
func (c Confirmation) HasDenial() bool {
	for _, r := range c.PauseReasons {
		if r.Type == models.PauseDenial {
			return true
		}
	}
	return false
}

// reduceConfirmation reports whether action is a confirmation action. Those
// addressed to a thread other than activeID leave c unchanged.
func reduceConfirmation(c Confirmation, activeID string, action Action) (Confirmation, bool) {
	switch a := action.(type) {
	case SetPauseReasons:
		if a.ID != activeID {
			return c, true
		}
		return Confirmation{
			Pause:        len(a.Reasons) > 0,
			PauseReasons: append([]models.PauseReason(nil), a.Reasons...),
		}, true
	case ClearPauseReasons:
		return Confirmation{WasInteracted: a.WasInteracted}, true
	case ResetConfirmationInteracted:
		if a.ID != activeID {
			return c, true
		}
		return Confirmation{}, true
	}
	return c, false
}
