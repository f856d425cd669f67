// Package stream exposes the persistent connection modules: chat and pubsub.
// Outbound messages share the module queue and bucket with every other call.
package stream

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-clientkit/classify"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/modules"
	goerrors "github.com/goliatone/go-errors"
)

type Module struct {
	kind            core.ModuleKind
	server          string
	botOwners       map[string]struct{}
	commandPrefixes []string
	writer          core.StreamWriter
	dispatcher      *modules.Dispatcher
}

// New builds a streaming module and starts its queue consumer.
func New(ctx context.Context, deps modules.Dependencies, writer core.StreamWriter) (*Module, error) {
	if surface, ok := core.ModuleSurface(deps.Module); !ok || surface != core.SurfaceStream {
		return nil, core.NewError("stream: module is not a stream surface", goerrors.CategoryBadInput, core.ErrorModuleBuild, map[string]any{
			"module": string(deps.Module),
		})
	}
	if writer == nil {
		return nil, core.NewError("stream: stream writer is required", goerrors.CategoryInternal, core.ErrorModuleBuild, map[string]any{
			"module": string(deps.Module),
		})
	}
	dispatcher, err := modules.NewDispatcher(ctx, deps)
	if err != nil {
		return nil, err
	}
	kind := dispatcher.Module()
	m := &Module{
		kind:       kind,
		server:     deps.Config.Endpoint(kind),
		botOwners:  map[string]struct{}{},
		writer:     writer,
		dispatcher: dispatcher,
	}
	if kind == core.ModuleChat {
		if server := strings.TrimSpace(deps.Config.Chat.Server); server != "" {
			m.server = server
		}
		for _, id := range deps.Config.Chat.BotOwnerIDs {
			if id = strings.TrimSpace(id); id != "" {
				m.botOwners[id] = struct{}{}
			}
		}
		for _, prefix := range deps.Config.Chat.CommandPrefixes {
			if prefix = strings.TrimSpace(prefix); prefix != "" {
				m.commandPrefixes = append(m.commandPrefixes, prefix)
			}
		}
	}
	dispatcher.Start(deps.Pool)
	return m, nil
}

func NewBuilder(writer core.StreamWriter) modules.Builder {
	return func(ctx context.Context, deps modules.Dependencies) (modules.Handle, error) {
		return New(ctx, deps, writer)
	}
}

func (m *Module) Kind() core.ModuleKind { return m.kind }

func (m *Module) Dispatcher() *modules.Dispatcher { return m.dispatcher }

// Server is the connection url of the module.
func (m *Module) Server() string { return m.server }

func (m *Module) IsBotOwner(userID string) bool {
	_, ok := m.botOwners[strings.TrimSpace(userID)]
	return ok
}

func (m *Module) CommandPrefixes() []string {
	return append([]string{}, m.commandPrefixes...)
}

// Send writes payload to the connection once the module queue and bucket
// allow it. Write failures are returned as is and never retried.
func (m *Module) Send(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return core.NewError("stream: payload is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"module": string(m.kind),
		})
	}
	message := append([]byte{}, payload...)
	_, err := m.dispatcher.Dispatch(ctx, func(callCtx context.Context) (classify.Result, error) {
		if err := m.writer.WriteMessage(callCtx, m.kind, message); err != nil {
			return classify.Result{}, err
		}
		return classify.Result{Outcome: classify.OutcomeDecoded, Status: http.StatusOK}, nil
	})
	return err
}

func (m *Module) Close() error {
	return m.dispatcher.Close()
}

var _ modules.Handle = (*Module)(nil)
