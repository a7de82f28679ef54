package redis

// Default message-size ceilings for a Config's MaxMessageBytes (spec
// §4.3): requests are capped tighter than responses since responses are
// the side allowed to chunk. The gateway does not fill them in itself: a
// Config that leaves MaxMessageBytes unset (0) applies no size limit.
const (
	DefaultClientMaxMessageBytes = 100 * 1024
	DefaultServerMaxMessageBytes = 250 * 1024
)
