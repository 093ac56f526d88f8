package discord

import (
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord member has the DJ role before
// executing privileged slash commands such as /skip and /stop.
type PermissionChecker struct {
	mu       sync.RWMutex
	djRoleID string
}

// NewPermissionChecker creates a PermissionChecker with the given DJ role ID.
func NewPermissionChecker(djRoleID string) *PermissionChecker {
	return &PermissionChecker{djRoleID: djRoleID}
}

// SetRole replaces the DJ role. Used when the config file is reloaded.
func (p *PermissionChecker) SetRole(djRoleID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.djRoleID = djRoleID
}

// IsDJ checks whether the interaction author has the configured DJ role.
// If no role is configured, everyone counts as a DJ.
// Returns false if the interaction has no Member (e.g., DM channel interactions).
func (p *PermissionChecker) IsDJ(i *discordgo.InteractionCreate) bool {
	p.mu.RLock()
	role := p.djRoleID
	p.mu.RUnlock()

	if role == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, role)
}
