package player

import "context"

// Provider describes the upstream source of the static player list.
type Provider interface {
	FetchBootstrap(ctx context.Context) (Bootstrap, error)
}
