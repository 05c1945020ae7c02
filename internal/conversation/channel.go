package conversation

import (
	"fmt"

	"github.com/hlabs/openclaw/internal/agent"
)

// Channel identifies one of the fixed conversation channels.
type Channel string

const (
	General        Channel = "general"
	DevLog         Channel = "dev-log"
	CopyBoard      Channel = "copy-board"
	QualityControl Channel = "quality-control"
	GrowthReview   Channel = "growth-review"
	FinalOutput    Channel = "final-output"
)

// ChannelInfo describes a channel for listing.
type ChannelInfo struct {
	ID          Channel    `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Owner       agent.Role `json:"owner"`
}

var channels = []ChannelInfo{
	{ID: General, Name: "HQ", Description: "Planning and task routing", Owner: agent.RoleDirector},
	{ID: DevLog, Name: "Dev Log", Description: "Engineering work", Owner: agent.RoleEngineer},
	{ID: CopyBoard, Name: "Copy Board", Description: "Copy and narrative work, search enabled", Owner: agent.RoleCopywriter},
	{ID: QualityControl, Name: "Quality Control", Description: "Engineering audit", Owner: agent.RoleCritic},
	{ID: GrowthReview, Name: "Growth Review", Description: "Copy audit", Owner: agent.RoleGrowthLead},
	{ID: FinalOutput, Name: "Final Output", Description: "Packaged deliverables", Owner: agent.RoleCreator},
}

// Channels returns the channel set in display order.
func Channels() []ChannelInfo {
	out := make([]ChannelInfo, len(channels))
	copy(out, channels)
	return out
}

// Valid reports whether c is one of the fixed channels.
func (c Channel) Valid() bool {
	for _, info := range channels {
		if info.ID == c {
			return true
		}
	}
	return false
}

// ParseChannel converts s to a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
	return c, nil
}
