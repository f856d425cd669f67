package pool

import (
	"strings"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Provisioned is the outcome of sizing the shared pool.
type Provisioned struct {
	Pool     core.WorkerPool
	Required int
	Capacity int
	Supplied bool
	Warning  *goerrors.Error
}

// Owned reports whether the pool was created here and must be closed by the
// caller.
func (p Provisioned) Owned() bool {
	return !p.Supplied && p.Pool != nil
}

// RequiredThreads is the helper requirement plus the requirement of every
// enabled module.
func RequiredThreads(enabled []core.ModuleKind) int {
	total := core.BaseRequirement
	for _, kind := range enabled {
		total += core.ModuleRequirement(kind)
	}
	return total
}

// GenerateName returns a collision resistant pool name.
func GenerateName(clientName string) string {
	prefix := strings.TrimSpace(clientName)
	if prefix == "" {
		prefix = "clientkit"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Provision keeps a supplied pool as is, warning when it is too small, or
// creates a pool sized exactly to the requirement. reserved adds workers
// needed outside the modules, such as pooled event delivery.
func Provision(clientName string, enabled []core.ModuleKind, reserved int, supplied core.WorkerPool, opts ...Option) (Provisioned, error) {
	required := RequiredThreads(enabled)
	if reserved > 0 {
		required += reserved
	}
	if supplied != nil {
		out := Provisioned{
			Pool:     supplied,
			Required: required,
			Capacity: supplied.Capacity(),
			Supplied: true,
		}
		if out.Capacity < required {
			out.Warning = core.UndersizedPoolWarning(supplied.Name(), out.Capacity, required)
		}
		return out, nil
	}

	created, err := New(GenerateName(clientName), required, opts...)
	if err != nil {
		return Provisioned{}, err
	}
	return Provisioned{
		Pool:     created,
		Required: required,
		Capacity: created.Capacity(),
	}, nil
}
