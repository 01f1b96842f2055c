package rep_test

import (
	"context"
	"errors"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
)

var errFake = errors.New("fake failure")

const (
	botID   = snowflake.ID(900)
	guildID = snowflake.ID(1)
	repChan = snowflake.ID(10)
	aliceID = snowflake.ID(101)
	bobID   = snowflake.ID(102)
	carolID = snowflake.ID(103)
	otherID = snowflake.ID(904)
)

type roleCall struct {
	Op     string
	UserID snowflake.ID
	RoleID snowflake.ID
	Nick   string
}

// fakePlatform is an in-memory guild with messaging, members and role editing.
type fakePlatform struct {
	mu       sync.Mutex
	members  map[snowflake.ID]platform.Member
	sent     []platform.OutgoingMessage
	calls    []roleCall
	nextID   snowflake.ID
	failSend bool
	failRole bool
	failList bool
}

func newFakePlatform(members ...platform.Member) *fakePlatform {
	f := &fakePlatform{
		members: make(map[snowflake.ID]platform.Member),
		nextID:  7000,
	}
	for _, m := range members {
		f.members[m.UserID] = m
	}

	return f
}

func (f *fakePlatform) SendMessage(
	_ context.Context, _ snowflake.ID, msg platform.OutgoingMessage,
) (snowflake.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend {
		return 0, errFake
	}

	f.nextID++
	f.sent = append(f.sent, msg)

	return f.nextID, nil
}

func (f *fakePlatform) DeleteMessage(context.Context, snowflake.ID, snowflake.ID) error {
	return nil
}

func (f *fakePlatform) SelfID() snowflake.ID {
	return botID
}

func (f *fakePlatform) Member(_ context.Context, _, userID snowflake.ID) (platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.members[userID]
	if !ok {
		return platform.Member{}, errFake
	}

	return m, nil
}

func (f *fakePlatform) ListMembers(context.Context, snowflake.ID) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failList {
		return nil, errFake
	}

	list := make([]platform.Member, 0, len(f.members))
	for _, m := range f.members {
		list = append(list, m)
	}

	return list, nil
}

func (f *fakePlatform) AddRole(_ context.Context, _, userID, roleID snowflake.ID) error {
	return f.record(roleCall{Op: "add", UserID: userID, RoleID: roleID})
}

func (f *fakePlatform) RemoveRole(_ context.Context, _, userID, roleID snowflake.ID) error {
	return f.record(roleCall{Op: "remove", UserID: userID, RoleID: roleID})
}

func (f *fakePlatform) SetNickname(_ context.Context, _, userID snowflake.ID, nickname string) error {
	return f.record(roleCall{Op: "nick", UserID: userID, Nick: nickname})
}

func (f *fakePlatform) record(call roleCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRole {
		return errFake
	}

	f.calls = append(f.calls, call)

	return nil
}

func (f *fakePlatform) roleCalls() []roleCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]roleCall(nil), f.calls...)
}

// memoryStore is an in-memory reputation store.
type memoryStore struct {
	mu       sync.Mutex
	totals   map[snowflake.ID]int64
	failRead bool
	failAdd  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{totals: make(map[snowflake.ID]int64)}
}

func (s *memoryStore) GetTotal(_ context.Context, userID snowflake.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRead {
		return 0, errFake
	}

	return s.totals[userID], nil
}

func (s *memoryStore) AddDelta(_ context.Context, userID snowflake.ID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAdd {
		return 0, errFake
	}

	s.totals[userID] += delta

	return s.totals[userID], nil
}

type staticGuilds []snowflake.ID

func (g staticGuilds) Guilds() []snowflake.ID { return g }
