package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCommand(t *testing.T) {
	ctx := commandContext{
		nickname: "alice",
		local:    stubAddr("192.168.1.5:7000"),
		people:   func() []string { return []string{"alice", "bob"} },
	}

	tests := []struct {
		command string
		want    string
	}{
		{"/me", "You are alice"},
		{"/ip", "192.168.1.5"},
		{"/port", "7000"},
		{"/people", "People connected:\n> alice\n> bob"},
		{"/xyz", replyUnknownCommand},
		{"/", replyUnknownCommand},
		{"/me ", replyUnknownCommand},
		{"/HELP", replyUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveCommand(tt.command, ctx))
		})
	}
}

func TestResolveCommandHelp(t *testing.T) {
	help := resolveCommand("/help", commandContext{people: func() []string { return nil }})

	lines := strings.Split(help, "\n")
	assert.Equal(t, "Commands:", lines[0])
	assert.Len(t, lines, len(helpLines))
	assert.Contains(t, help, "/nick")
}

func TestResolveCommandWithoutPeople(t *testing.T) {
	got := resolveCommand("/people", commandContext{people: func() []string { return nil }})
	assert.Equal(t, "People connected:", got)
}

func TestHostPortWithoutAddress(t *testing.T) {
	host, port := hostPort(nil)
	assert.Equal(t, "unknown", host)
	assert.Equal(t, "unknown", port)
}
