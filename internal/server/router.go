package server

import (
	"log/slog"
	"net"

	"github.com/Tyrowin/peerchat/internal/registry"
)

// Router delivers messages between registered peers. It holds no state of
// its own; every decision is made against a registry snapshot or lookup.
type Router struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewRouter creates a Router over reg.
func NewRouter(reg *registry.Registry, logger *slog.Logger) *Router {
	return &Router{registry: reg, logger: logger}
}

// Broadcast sends message to every registered peer except sender and
// returns the number of peers it was handed to.
func (r *Router) Broadcast(sender, message string) int {
	delivered := 0
	for _, entry := range r.registry.Entries() {
		if entry.Nickname == sender {
			continue
		}
		entry.Member.Send(message)
		delivered++
	}

	r.logger.Debug("broadcast message", "sender", sender, "targets", delivered)
	return delivered
}

// PrivateMessage delivers message to dest. When dest is not registered the
// sender gets an error notice instead; the miss is not an error.
func (r *Router) PrivateMessage(sender, dest, message string) bool {
	if member, ok := r.registry.Lookup(dest); ok {
		member.Send(message)
		return true
	}

	r.logger.Debug("private message destination not found", "sender", sender, "dest", dest)
	if member, ok := r.registry.Lookup(sender); ok {
		member.Send(noticeUnknownUser)
	}
	return false
}

// ServerCommand resolves a slash command for nickname. local is the address
// of the listener the issuing peer is connected through.
func (r *Router) ServerCommand(nickname, command string, local net.Addr) string {
	return resolveCommand(command, commandContext{
		nickname: nickname,
		local:    local,
		people:   r.registry.Nicknames,
	})
}
