package forum

import (
	"context"
	"slices"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"go.uber.org/zap"
)

// TagCatalog resolves the tags a forum offers.
type TagCatalog interface {
	// AvailableTags returns the tag catalog of the forum channel.
	AvailableTags(ctx context.Context, forumID snowflake.ID) ([]platform.Tag, error)
}

// ThreadEditor changes thread state on the platform.
type ThreadEditor interface {
	// SetAppliedTags replaces the full applied tag list of a thread.
	SetAppliedTags(ctx context.Context, threadID snowflake.ID, tags []snowflake.ID) error
}

// FindTag returns the catalog tag with the given name, or nil when it is not configured.
func FindTag(catalog []platform.Tag, name string) *platform.Tag {
	if name == "" {
		return nil
	}

	for i := range catalog {
		if catalog[i].Name == name {
			return &catalog[i]
		}
	}

	return nil
}

// TagReconciler converges a thread's missing-info tags with a classification.
type TagReconciler struct {
	editor ThreadEditor
	logger *zap.Logger
}

// NewTagReconciler creates a reconciler that edits threads through editor.
func NewTagReconciler(editor ThreadEditor, logger *zap.Logger) *TagReconciler {
	return &TagReconciler{
		editor: editor,
		logger: logger.Named("tag_reconciler"),
	}
}

// TargetTags computes the tag list for a thread without touching the platform.
// A found signal removes its tag; a missing signal adds its tag when configured and absent.
func TargetTags(current []snowflake.ID, result Classification, priceTag, locationTag *platform.Tag) []snowflake.ID {
	updated := slices.Clone(current)
	updated = applyRule(updated, result.PriceFound, priceTag)
	updated = applyRule(updated, result.LocationFound, locationTag)

	return updated
}

func applyRule(tags []snowflake.ID, found bool, tag *platform.Tag) []snowflake.ID {
	if tag == nil {
		return tags
	}

	if found {
		return slices.DeleteFunc(tags, func(id snowflake.ID) bool { return id == tag.ID })
	}

	if !slices.Contains(tags, tag.ID) {
		return append(tags, tag.ID)
	}

	return tags
}

// Reconcile applies the classification to the thread and returns the resulting tag list.
// The edit is only issued when the set of tags changes. Edit failures are logged and
// the computed list is still returned as the assumed new state.
func (r *TagReconciler) Reconcile(
	ctx context.Context, thread platform.Thread, result Classification, priceTag, locationTag *platform.Tag,
) []snowflake.ID {
	updated := TargetTags(thread.AppliedTags, result, priceTag, locationTag)
	r.apply(ctx, thread, updated)

	return updated
}

// Strip removes the given tags from the thread and returns the resulting tag list.
func (r *TagReconciler) Strip(ctx context.Context, thread platform.Thread, tags ...*platform.Tag) []snowflake.ID {
	updated := slices.DeleteFunc(slices.Clone(thread.AppliedTags), func(id snowflake.ID) bool {
		return slices.ContainsFunc(tags, func(tag *platform.Tag) bool {
			return tag != nil && tag.ID == id
		})
	})
	r.apply(ctx, thread, updated)

	return updated
}

func (r *TagReconciler) apply(ctx context.Context, thread platform.Thread, updated []snowflake.ID) {
	if sameTagSet(thread.AppliedTags, updated) {
		return
	}

	if err := r.editor.SetAppliedTags(ctx, thread.ID, updated); err != nil {
		r.logger.Error("Failed to update thread tags",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))

		return
	}

	r.logger.Info("Updated thread tags",
		zap.Uint64("threadID", uint64(thread.ID)),
		zap.Int("tagCount", len(updated)))
}

// sameTagSet compares two tag lists ignoring order and duplicates.
func sameTagSet(a, b []snowflake.ID) bool {
	set := make(map[snowflake.ID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}

	other := make(map[snowflake.ID]struct{}, len(b))
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}

		other[id] = struct{}{}
	}

	return len(set) == len(other)
}

// hasTag reports whether tag is configured and present in tags.
func hasTag(tags []snowflake.ID, tag *platform.Tag) bool {
	return tag != nil && slices.Contains(tags, tag.ID)
}
