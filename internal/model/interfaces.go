package model

import "context"

// Blocker is the mitigation collaborator (SDN layer). Implementations install
// and remove DROP rules; how they do so is outside this pipeline.
type Blocker interface {
	BlockIP(ctx context.Context, ip string) error
	UnblockIP(ctx context.Context, ip string) error
	// Reachable reports whether the collaborator answers at all. Used only
	// for the health surface.
	Reachable(ctx context.Context) bool
}

// Notifier abstracts the channel used to deliver alert summaries.
type Notifier interface {
	Send(subject, body string) error
}
