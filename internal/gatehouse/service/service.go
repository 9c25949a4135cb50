// Package service holds the access-control core: the roster, the entry/exit
// state machine, the history/board dual ledger, audited edits and deletes,
// and attendance reports. Every service works against a store.Store, so the
// same code serves both the production and the training namespace.
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

const (
	DefaultManualJustificationMin = 200
	DefaultDepartedMarker         = "Egresso: "
)

// Settings are the per-site knobs shared by every service.
type Settings struct {
	Clock                  shift.Clock
	ManualJustificationMin int
	DepartedMarker         string

	// Now is the wall clock; nil means time.Now.
	Now func() time.Time
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Settings) withDefaults() Settings {
	if s.ManualJustificationMin <= 0 {
		s.ManualJustificationMin = DefaultManualJustificationMin
	}
	if s.DepartedMarker == "" {
		s.DepartedMarker = DefaultDepartedMarker
	}
	return s
}

// Services bundles the core for one namespace.
type Services struct {
	Namespace string

	Roster   *Roster
	Ledger   *Ledger
	Registry *Registry
	Mutation *Mutation
	Reports  *Reports
	History  *History
	Clock    shift.Clock
	Store    store.Store
}

func New(namespace string, st store.Store, set Settings, secrets SecretVerifier, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	set = set.withDefaults()
	logger = logger.With(zap.String("namespace", namespace))

	ledger := NewLedger(st, set, secrets, logger)
	roster := NewRoster(st, set, logger)
	return &Services{
		Namespace: namespace,
		Roster:    roster,
		Ledger:    ledger,
		Registry:  NewRegistry(ledger, set, logger),
		Mutation:  NewMutation(ledger, set, logger),
		Reports:   NewReports(st, set, logger),
		History:   NewHistory(st, set, logger),
		Clock:     set.Clock,
		Store:     st,
	}
}
