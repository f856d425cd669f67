package core

import (
	"fmt"
	"sort"
	"strings"
)

// ModuleKind identifies one remote API surface the client can enable.
type ModuleKind string

const (
	ModuleExtensions ModuleKind = "extensions"
	ModuleHelix      ModuleKind = "helix"
	ModuleKraken     ModuleKind = "kraken"
	ModuleTMI        ModuleKind = "tmi"
	ModuleChat       ModuleKind = "chat"
	ModulePubSub     ModuleKind = "pubsub"
	ModuleGraphQL    ModuleKind = "graphql"
)

// SurfaceKind groups modules by how they reach the remote side.
type SurfaceKind string

const (
	SurfaceREST   SurfaceKind = "rest"
	SurfaceStream SurfaceKind = "stream"
	SurfaceQuery  SurfaceKind = "query"
)

// BaseRequirement is the worker count needed by the client helper alone.
const BaseRequirement = 1

type moduleEntry struct {
	surface SurfaceKind
	threads int
}

// Every module owns one long-lived queue consumer, which occupies a worker.
var moduleTable = map[ModuleKind]moduleEntry{
	ModuleExtensions: {surface: SurfaceREST, threads: 1},
	ModuleHelix:      {surface: SurfaceREST, threads: 1},
	ModuleKraken:     {surface: SurfaceREST, threads: 1},
	ModuleTMI:        {surface: SurfaceREST, threads: 1},
	ModuleChat:       {surface: SurfaceStream, threads: 1},
	ModulePubSub:     {surface: SurfaceStream, threads: 1},
	ModuleGraphQL:    {surface: SurfaceQuery, threads: 1},
}

// AllModules returns every known module kind in a stable order.
func AllModules() []ModuleKind {
	out := make([]ModuleKind, 0, len(moduleTable))
	for kind := range moduleTable {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModuleRequirement returns the minimum worker count the module needs.
// Unknown kinds require nothing.
func ModuleRequirement(kind ModuleKind) int {
	return moduleTable[NormalizeModuleKind(string(kind))].threads
}

func ModuleSurface(kind ModuleKind) (SurfaceKind, bool) {
	entry, ok := moduleTable[NormalizeModuleKind(string(kind))]
	if !ok {
		return "", false
	}
	return entry.surface, true
}

func IsKnownModule(kind ModuleKind) bool {
	_, ok := moduleTable[NormalizeModuleKind(string(kind))]
	return ok
}

func NormalizeModuleKind(raw string) ModuleKind {
	return ModuleKind(strings.TrimSpace(strings.ToLower(raw)))
}

// ParseModules normalizes, validates and de-duplicates module names.
func ParseModules(raw []string) ([]ModuleKind, error) {
	seen := map[ModuleKind]bool{}
	out := make([]ModuleKind, 0, len(raw))
	for _, name := range raw {
		kind := NormalizeModuleKind(name)
		if kind == "" {
			continue
		}
		if !IsKnownModule(kind) {
			return nil, fmt.Errorf("core: unknown module %q", name)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
