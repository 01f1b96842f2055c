package forum_test

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
)

var errPlatform = errors.New("platform unavailable")

type sentMessage struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	Message   platform.OutgoingMessage
}

type tagEdit struct {
	ThreadID snowflake.ID
	Tags     []snowflake.ID
}

// fakePlatform records every call the checker makes.
type fakePlatform struct {
	mu       sync.Mutex
	selfID   snowflake.ID
	catalog  []platform.Tag
	starters map[snowflake.ID]platform.Message
	history  map[snowflake.ID][]platform.Message
	sent     []sentMessage
	deleted  []snowflake.ID
	edits    []tagEdit
	nextID   snowflake.ID

	failTags bool
	failSend bool
	failEdit bool
}

func newFakePlatform(catalog ...platform.Tag) *fakePlatform {
	return &fakePlatform{
		selfID:   900,
		catalog:  catalog,
		starters: make(map[snowflake.ID]platform.Message),
		history:  make(map[snowflake.ID][]platform.Message),
		nextID:   5000,
	}
}

func (f *fakePlatform) AvailableTags(context.Context, snowflake.ID) ([]platform.Tag, error) {
	if f.failTags {
		return nil, errPlatform
	}

	return f.catalog, nil
}

func (f *fakePlatform) SetAppliedTags(_ context.Context, threadID snowflake.ID, tags []snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failEdit {
		return errPlatform
	}

	f.edits = append(f.edits, tagEdit{ThreadID: threadID, Tags: slices.Clone(tags)})

	return nil
}

func (f *fakePlatform) SendMessage(
	_ context.Context, channelID snowflake.ID, msg platform.OutgoingMessage,
) (snowflake.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend {
		return 0, errPlatform
	}

	f.nextID++
	f.sent = append(f.sent, sentMessage{ID: f.nextID, ChannelID: channelID, Message: msg})

	return f.nextID, nil
}

func (f *fakePlatform) DeleteMessage(_ context.Context, _, messageID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, messageID)

	return nil
}

func (f *fakePlatform) RecentMessages(_ context.Context, channelID snowflake.ID, limit int) ([]platform.Message, error) {
	messages := f.history[channelID]
	if len(messages) > limit {
		messages = messages[:limit]
	}

	return messages, nil
}

func (f *fakePlatform) StarterMessage(_ context.Context, thread platform.Thread) (platform.Message, error) {
	msg, ok := f.starters[thread.ID]
	if !ok {
		return platform.Message{}, errPlatform
	}

	return msg, nil
}

func (f *fakePlatform) SelfID() snowflake.ID {
	return f.selfID
}

func (f *fakePlatform) lastEdit() (tagEdit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.edits) == 0 {
		return tagEdit{}, false
	}

	return f.edits[len(f.edits)-1], true
}
