// Package app composes the GroupFit services from their stores and manages
// their lifecycle.
//
//	internal/app/
//	├── application.go   # Stores, Options, Application wiring
//	├── domain/          # member, group and friend models
//	├── storage/         # store interfaces, memory and postgres
//	├── services/        # members, groups, friends business rules
//	├── auth/            # passwords, tokens, revocations
//	├── media/           # evidence file storage
//	├── httpapi/         # REST handlers
//	├── jobs/            # scheduled housekeeping
//	├── metrics/         # Prometheus collectors
//	├── runtime/         # config-driven process wiring
//	└── system/          # lifecycle manager
//
// Adding a resource means adding its model under domain/, its store methods
// to storage/interfaces.go and both implementations, a service under
// services/, and handlers under httpapi/.
package app
