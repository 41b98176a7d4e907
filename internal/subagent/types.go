package subagent

import (
	"errors"

	"github.com/owulveryck/nexushealth/internal/transport"
)

// Skill is one capability hosted by the process
type Skill struct {
	Name        string
	Description string
	Handler     transport.Handler
}

// Common errors
var (
	ErrMissingServiceName  = errors.New("service name is required")
	ErrMissingAddr         = errors.New("listen address is required")
	ErrNoSkills            = errors.New("at least one skill must be registered")
	ErrDuplicateSkill      = errors.New("skill with this name already registered")
	ErrAgentAlreadyRunning = errors.New("agent is already running")
)
