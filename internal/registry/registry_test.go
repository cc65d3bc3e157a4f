package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMember struct {
	mu    sync.Mutex
	lines []string
}

func (m *recordingMember) Send(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func (m *recordingMember) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func TestValidate(t *testing.T) {
	reg := New(Hooks{})
	require.NoError(t, reg.Register("Bob", &recordingMember{}))

	tests := []struct {
		name      string
		candidate string
		want      Outcome
	}{
		{"empty", "", Blank},
		{"spaces only", "   ", Blank},
		{"tab only", "\t", Blank},
		{"inner space", "bo b", ContainsWhitespace},
		{"trailing tab", "carol\t", ContainsWhitespace},
		{"taken exact", "Bob", AlreadyTaken},
		{"taken other case", "bOB", AlreadyTaken},
		{"free", "alice", Valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Validate(tt.candidate))
		})
	}
}

func TestRegisterThenLookup(t *testing.T) {
	reg := New(Hooks{})
	alice := &recordingMember{}

	require.NoError(t, reg.Register("alice", alice))

	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)

	_, ok = reg.Lookup("Alice")
	assert.False(t, ok, "lookup is case-sensitive")
	assert.Equal(t, 1, reg.Count())
}

func TestRegisterIsCaseInsensitiveUnique(t *testing.T) {
	reg := New(Hooks{})
	require.NoError(t, reg.Register("Bob", &recordingMember{}))

	err := reg.Register("bob", &recordingMember{})
	assert.ErrorIs(t, err, ErrDuplicateNickname)
	assert.Equal(t, 1, reg.Count())
}

func TestRegisterRejectsInvalidSyntax(t *testing.T) {
	reg := New(Hooks{})

	err := reg.Register(" ", &recordingMember{})
	var nickErr *NicknameError
	require.ErrorAs(t, err, &nickErr)
	assert.Equal(t, Blank, nickErr.Outcome)
	assert.ErrorIs(t, err, ErrInvalidNickname)

	err = reg.Register("a b", &recordingMember{})
	require.ErrorAs(t, err, &nickErr)
	assert.Equal(t, ContainsWhitespace, nickErr.Outcome)
	assert.Zero(t, reg.Count())
}

func TestRename(t *testing.T) {
	reg := New(Hooks{})
	alice := &recordingMember{}
	require.NoError(t, reg.Register("alice", alice))
	require.NoError(t, reg.Register("bob", &recordingMember{}))

	t.Run("moves the member", func(t *testing.T) {
		require.NoError(t, reg.Rename("alice", "alicia"))
		_, ok := reg.Lookup("alice")
		assert.False(t, ok)
		got, ok := reg.Lookup("alicia")
		require.True(t, ok)
		assert.Same(t, alice, got)
	})

	t.Run("collision fails and keeps old entry", func(t *testing.T) {
		err := reg.Rename("alicia", "BOB")
		assert.ErrorIs(t, err, ErrDuplicateNickname)
		_, ok := reg.Lookup("alicia")
		assert.True(t, ok)
	})

	t.Run("own casing change is allowed", func(t *testing.T) {
		require.NoError(t, reg.Rename("alicia", "Alicia"))
		_, ok := reg.Lookup("Alicia")
		assert.True(t, ok)
		assert.Equal(t, []string{"Alicia", "bob"}, reg.Nicknames())
	})

	t.Run("unknown old nickname", func(t *testing.T) {
		assert.ErrorIs(t, reg.Rename("nobody", "somebody"), ErrUnknownNickname)
	})

	t.Run("invalid new nickname", func(t *testing.T) {
		assert.ErrorIs(t, reg.Rename("bob", "b o b"), ErrInvalidNickname)
	})

	t.Run("same nickname is a no-op", func(t *testing.T) {
		assert.NoError(t, reg.Rename("nobody", "nobody"))
		assert.Equal(t, 2, reg.Count())
	})
}

func TestDeregisterIsIdempotent(t *testing.T) {
	emptied := 0
	reg := New(Hooks{OnEmpty: func() { emptied++ }})
	require.NoError(t, reg.Register("alice", &recordingMember{}))

	assert.Equal(t, 0, reg.Deregister("alice"))
	assert.Equal(t, 0, reg.Deregister("alice"))

	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
	assert.Equal(t, 1, emptied, "hooks run only when an entry is removed")

	// The nickname is free again.
	assert.Equal(t, Valid, reg.Validate("ALICE"))
}

func TestDeregisterHooks(t *testing.T) {
	var alone []Entry
	emptied := 0
	reg := New(Hooks{
		OnAlone: func(e Entry) { alone = append(alone, e) },
		OnEmpty: func() { emptied++ },
	})

	bob := &recordingMember{}
	require.NoError(t, reg.Register("alice", &recordingMember{}))
	require.NoError(t, reg.Register("bob", bob))
	require.NoError(t, reg.Register("carol", &recordingMember{}))

	assert.Equal(t, 2, reg.Deregister("carol"))
	assert.Empty(t, alone)

	assert.Equal(t, 1, reg.Deregister("alice"))
	require.Len(t, alone, 1)
	assert.Equal(t, "bob", alone[0].Nickname)
	assert.Same(t, bob, alone[0].Member)
	assert.Zero(t, emptied)

	assert.Equal(t, 0, reg.Deregister("bob"))
	assert.Equal(t, 1, emptied)
}

func TestHooksMayCallBackIntoRegistry(t *testing.T) {
	var reg *Registry
	reg = New(Hooks{OnAlone: func(e Entry) {
		e.Member.Send(fmt.Sprintf("%d left", reg.Count()))
	}})

	bob := &recordingMember{}
	require.NoError(t, reg.Register("alice", &recordingMember{}))
	require.NoError(t, reg.Register("bob", bob))

	reg.Deregister("alice")
	assert.Equal(t, []string{"1 left"}, bob.received())
}

func TestSnapshotsAreSorted(t *testing.T) {
	reg := New(Hooks{})
	for _, nick := range []string{"carol", "alice", "bob"} {
		require.NoError(t, reg.Register(nick, &recordingMember{}))
	}

	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.Nicknames())

	entries := reg.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].Nickname)
	assert.Equal(t, "carol", entries[2].Nickname)
}

func TestConcurrentRegistrationOfDistinctNicknames(t *testing.T) {
	const n = 200
	reg := New(Hooks{})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			nick := fmt.Sprintf("peer%03d", id)
			if reg.Validate(nick) != Valid {
				errs <- fmt.Errorf("%s unexpectedly invalid", nick)
				return
			}
			errs <- reg.Register(nick, &recordingMember{})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, n, reg.Count())
	assert.Len(t, reg.Nicknames(), n)
}

func TestConcurrentRegistrationOfSameNickname(t *testing.T) {
	const n = 50
	reg := New(Hooks{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			// Alternate casing so the fold index is what rejects the losers.
			nick := "Dave"
			if id%2 == 0 {
				nick = "dave"
			}
			if err := reg.Register(nick, &recordingMember{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrDuplicateNickname)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, reg.Count())
}

func TestConcurrentRenamesKeepOneEntryPerMember(t *testing.T) {
	const n = 20
	reg := New(Hooks{})
	for i := 0; i < n; i++ {
		require.NoError(t, reg.Register(fmt.Sprintf("user%d", i), &recordingMember{}))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			old := fmt.Sprintf("user%d", id)
			// Every member races for the same target; exactly one wins.
			if err := reg.Rename(old, "target"); err != nil {
				assert.ErrorIs(t, err, ErrDuplicateNickname)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, reg.Count())
	_, ok := reg.Lookup("target")
	assert.True(t, ok)
}
