package mail

import "context"

type tagsKey struct{}

// WithTags attaches correlation tags (campaign, notification type) to a send.
// Queued transports carry them with the message so a relay that finally gives
// up can say what was lost.
func WithTags(ctx context.Context, tags map[string]string) context.Context {
	return context.WithValue(ctx, tagsKey{}, tags)
}

func TagsFrom(ctx context.Context) map[string]string {
	tags, _ := ctx.Value(tagsKey{}).(map[string]string)
	return tags
}
