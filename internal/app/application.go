package app

import (
	"context"
	"fmt"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/media"
	"github.com/groupfit/server/internal/app/services/friends"
	"github.com/groupfit/server/internal/app/services/groups"
	"github.com/groupfit/server/internal/app/services/members"
	"github.com/groupfit/server/internal/app/storage"
	"github.com/groupfit/server/internal/app/storage/memory"
	"github.com/groupfit/server/internal/app/system"
	"github.com/groupfit/server/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Members storage.MemberStore
	Groups  storage.GroupStore
	Friends storage.FriendStore
	Health  storage.Pinger
}

// Options carries the non-storage dependencies.
type Options struct {
	Hasher      auth.Hasher
	Tokens      *auth.Tokens
	Revocations auth.Revocations
	Media       media.Store
}

// Application ties the domain services together and runs attached
// background services such as housekeeping.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Members *members.Service
	Groups  *groups.Service
	Friends *friends.Service

	Tokens      *auth.Tokens
	Revocations auth.Revocations
	Health      storage.Pinger
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if opts.Media == nil {
		return nil, fmt.Errorf("media store is required")
	}
	if opts.Hasher.Cost == 0 {
		opts.Hasher = auth.NewHasher()
	}
	if opts.Revocations == nil {
		opts.Revocations = auth.NewMemoryRevocations()
	}

	mem := memory.New()
	if stores.Members == nil {
		stores.Members = mem
	}
	if stores.Groups == nil {
		stores.Groups = mem
	}
	if stores.Friends == nil {
		stores.Friends = mem
	}
	if stores.Health == nil {
		stores.Health = mem
	}

	return &Application{
		manager:     system.NewManager(),
		log:         log,
		Members:     members.New(stores.Members, opts.Hasher, log),
		Groups:      groups.New(stores.Groups, stores.Members, opts.Media, log),
		Friends:     friends.New(stores.Friends, stores.Members, log),
		Tokens:      opts.Tokens,
		Revocations: opts.Revocations,
		Health:      stores.Health,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the registered lifecycle services.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
