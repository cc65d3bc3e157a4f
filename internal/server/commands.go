package server

import (
	"net"
	"strings"
)

type commandContext struct {
	nickname string
	local    net.Addr
	people   func() []string
}

var helpLines = []string{
	"Commands:",
	"/help   -> Shows a list of the server commands",
	"/ip     -> Displays the server IP address",
	"/me     -> Shows your nickname",
	"/nick   -> Allows to change the name",
	"/people -> Users currently connected to the server",
	"/port   -> Displays the server's Port",
	"/exit   -> Exits the server",
}

// resolveCommand maps a slash command onto its reply text. Multi-line
// replies are joined with "\n".
func resolveCommand(command string, ctx commandContext) string {
	switch command {
	case "/help":
		return strings.Join(helpLines, "\n")
	case "/ip":
		host, _ := hostPort(ctx.local)
		return host
	case "/me":
		return "You are " + ctx.nickname
	case "/people":
		var sb strings.Builder
		sb.WriteString("People connected:")
		for _, nick := range ctx.people() {
			sb.WriteString("\n> ")
			sb.WriteString(nick)
		}
		return sb.String()
	case "/port":
		_, port := hostPort(ctx.local)
		return port
	default:
		return replyUnknownCommand
	}
}
