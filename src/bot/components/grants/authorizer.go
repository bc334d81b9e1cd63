package grants

import (
	"github.com/bwmarrin/discordgo"
)

// RoleAuthorizer answers the dispatcher's veto privilege checks by
// guild role membership.
type RoleAuthorizer struct {
	session    *discordgo.Session
	guildID    string
	vetoRoleID string
}

func NewRoleAuthorizer(s *discordgo.Session, guildID, vetoRoleID string) *RoleAuthorizer {
	return &RoleAuthorizer{session: s, guildID: guildID, vetoRoleID: vetoRoleID}
}

func (a *RoleAuthorizer) CanVeto(userID string) bool {
	member, err := a.session.GuildMember(a.guildID, userID)
	if err != nil {
		return false
	}

	for _, role := range member.Roles {
		if role == a.vetoRoleID {
			return true
		}
	}

	return false
}
