// Package gateway is the DI container plus the five MCP tool handlers:
// memory_store, memory_query, governance_update, evidence_upload, and
// reliability_report. It holds no package-level state — every dependency
// arrives through Deps so tests can swap the container wholesale, per
// SPEC_FULL.md §9 "Global state → DI container".
package gateway

import (
	"log/slog"

	"github.com/onlyfeng/engram-gateway/internal/artifactstore"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/notify"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

// Config is the subset of application configuration the handlers read.
type Config struct {
	ProjectKey                     string
	DefaultTeamSpace               string
	PrivateSpacePrefix             string
	UnknownActorPolicy             string // reject | degrade | auto_create
	GovernanceAdminKey             string
	ValidateEvidenceRefs           bool
	StrictModeEnforceValidateRefs  bool
}

// Deps is the Gateway's dependency-injection container.
type Deps struct {
	Config        Config
	Logbook       logbook.Port
	OpenMemory    openmemory.Interface
	ArtifactStore artifactstore.Store
	Slack         *notify.SlackNotifier
	Logger        *slog.Logger
}

// Gateway bundles Deps behind the methods the RPC front-end calls.
type Gateway struct {
	deps Deps
}

// New constructs a Gateway from deps.
func New(deps Deps) *Gateway {
	return &Gateway{deps: deps}
}
