// Package registry holds the authoritative nickname-to-member mapping of the
// chat server. Every operation runs under a single lock so concurrent
// handlers observe a linearizable history of registrations, renames and
// removals.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Member is anything the registry can deliver a line to.
type Member interface {
	Send(line string)
}

// Entry is a point-in-time pairing of a nickname with its member.
type Entry struct {
	Nickname string
	Member   Member
}

// Hooks are policy callbacks run by Deregister after an entry was removed.
// They are invoked outside the registry lock.
type Hooks struct {
	// OnAlone is called when exactly one member remains.
	OnAlone func(remaining Entry)
	// OnEmpty is called when no members remain.
	OnEmpty func()
}

// Registry maps nicknames to members. Nicknames are stored exactly as
// registered and are unique under Unicode case folding.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Member
	folded  map[string]string // fold key -> stored nickname
	hooks   Hooks
}

// New creates an empty Registry with the given deregistration hooks.
func New(hooks Hooks) *Registry {
	return &Registry{
		members: make(map[string]Member),
		folded:  make(map[string]string),
		hooks:   hooks,
	}
}

// Validate checks a candidate against the current registry state.
// Callers that go on to register must still handle ErrDuplicateNickname
// from Register, which repeats the check under the write lock.
func (r *Registry) Validate(candidate string) Outcome {
	if outcome := checkSyntax(candidate); outcome != Valid {
		return outcome
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, taken := r.folded[foldKey(candidate)]; taken {
		return AlreadyTaken
	}
	return Valid
}

// Register inserts member under nickname if the nickname is still valid at
// the moment of insertion.
func (r *Registry) Register(nickname string, member Member) error {
	if outcome := checkSyntax(nickname); outcome != Valid {
		return &NicknameError{Nickname: nickname, Outcome: outcome}
	}
	key := foldKey(nickname)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, taken := r.folded[key]; taken {
		return fmt.Errorf("%w: %q collides with %q", ErrDuplicateNickname, nickname, existing)
	}
	r.members[nickname] = member
	r.folded[key] = nickname
	return nil
}

// Rename moves the member registered as oldNickname to newNickname in one
// step. Renaming to a different casing of the same nickname is allowed.
func (r *Registry) Rename(oldNickname, newNickname string) error {
	if oldNickname == newNickname {
		return nil
	}
	if outcome := checkSyntax(newNickname); outcome != Valid {
		return &NicknameError{Nickname: newNickname, Outcome: outcome}
	}
	oldKey := foldKey(oldNickname)
	newKey := foldKey(newNickname)

	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.members[oldNickname]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNickname, oldNickname)
	}
	if existing, taken := r.folded[newKey]; taken && existing != oldNickname {
		return fmt.Errorf("%w: %q collides with %q", ErrDuplicateNickname, newNickname, existing)
	}

	delete(r.members, oldNickname)
	delete(r.folded, oldKey)
	r.members[newNickname] = member
	r.folded[newKey] = newNickname
	return nil
}

// Deregister removes nickname and returns the number of members left.
// Removing an absent nickname is a no-op and runs no hooks.
func (r *Registry) Deregister(nickname string) int {
	r.mu.Lock()
	if _, ok := r.members[nickname]; !ok {
		remaining := len(r.members)
		r.mu.Unlock()
		return remaining
	}

	delete(r.members, nickname)
	delete(r.folded, foldKey(nickname))

	remaining := len(r.members)
	var alone Entry
	if remaining == 1 {
		for nick, member := range r.members {
			alone = Entry{Nickname: nick, Member: member}
		}
	}
	r.mu.Unlock()

	switch remaining {
	case 0:
		if r.hooks.OnEmpty != nil {
			r.hooks.OnEmpty()
		}
	case 1:
		if r.hooks.OnAlone != nil {
			r.hooks.OnAlone(alone)
		}
	}
	return remaining
}

// Lookup returns the member registered under exactly nickname.
func (r *Registry) Lookup(nickname string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[nickname]
	return member, ok
}

// Nicknames returns the registered nicknames, sorted.
func (r *Registry) Nicknames() []string {
	r.mu.RLock()
	nicknames := make([]string, 0, len(r.members))
	for nick := range r.members {
		nicknames = append(nicknames, nick)
	}
	r.mu.RUnlock()

	sort.Strings(nicknames)
	return nicknames
}

// Entries returns a snapshot of every registered member, sorted by nickname.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.members))
	for nick, member := range r.members {
		entries = append(entries, Entry{Nickname: nick, Member: member})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Nickname < entries[j].Nickname
	})
	return entries
}

// Count returns the number of registered members.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
