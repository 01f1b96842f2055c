package loki

import (
	"maps"
	"strconv"

	"github.com/bytedance/sonic"
	"go.uber.org/zap/zapcore"
)

// Core implements zapcore.Core and hands encoded entries to a Pusher.
type Core struct {
	zapcore.LevelEnabler

	pusher *Pusher
	fields map[string]any
}

// NewCore creates a new Loki Core with the provided pusher.
func NewCore(enabler zapcore.LevelEnabler, pusher *Pusher) *Core {
	return &Core{
		LevelEnabler: enabler,
		pusher:       pusher,
	}
}

// With returns a core that adds fields to every entry.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	merged := make(map[string]any, len(c.fields)+len(fields))
	maps.Copy(merged, c.fields)
	maps.Copy(merged, encodeFields(fields))

	return &Core{
		LevelEnabler: c.LevelEnabler,
		pusher:       c.pusher,
		fields:       merged,
	}
}

// Check determines whether the supplied Entry should be logged.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// Write encodes the entry and queues it for the next push.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	line := logLine{
		Level:   ent.Level.String(),
		Time:    ent.Time.UnixMilli(),
		Message: ent.Message,
		Logger:  ent.LoggerName,
		Stack:   ent.Stack,
	}

	if ent.Caller.Defined {
		line.Caller = ent.Caller.TrimmedPath()
	}

	if len(c.fields) > 0 || len(fields) > 0 {
		line.Fields = make(map[string]any, len(c.fields)+len(fields))
		maps.Copy(line.Fields, c.fields)
		maps.Copy(line.Fields, encodeFields(fields))
	}

	raw, err := sonic.Marshal(line)
	if err != nil {
		return err
	}

	c.pusher.Add(streamValue{strconv.FormatInt(ent.Time.UnixNano(), 10), string(raw)})

	return nil
}

// Sync is a no-op; the pusher flushes on its own schedule and on Stop.
func (c *Core) Sync() error {
	return nil
}

func encodeFields(fields []zapcore.Field) map[string]any {
	enc := zapcore.NewMapObjectEncoder()
	for i := range fields {
		fields[i].AddTo(enc)
	}

	return enc.Fields
}
