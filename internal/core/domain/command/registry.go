package command

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"nstbot/internal/core/port"

	"github.com/rs/zerolog/log"
)

var ErrCommandNotFound = errors.New("command not found")

type Registry struct {
	mu       sync.RWMutex
	commands map[string]port.Command
}

func (r *Registry) Register(handler port.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.commands == nil {
		r.commands = make(map[string]port.Command)
	}

	log.Info().Str("handler", handler.GetCommand()).Msg("adding command handler to registry")
	r.commands[handler.GetCommand()] = handler
}

func (r *Registry) Get(command string) (port.Command, error) {
	log.Debug().Str("command", command).Msg("fetching command handler from registry")

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.commands == nil {
		return nil, errors.New("can't fetch command, registry not initialized")
	}

	handler, ok := r.commands[command]
	if !ok {
		return nil, ErrCommandNotFound
	}

	return handler, nil
}

// ListCommands returns the registered command identifiers in lexical order.
func (r *Registry) ListCommands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.commands))
	for k := range r.commands {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}

func ParseCommandArgs(args string) string {
	command := strings.Split(args, " ")
	return strings.TrimSpace(strings.Join(command[1:], " "))
}

// ParseCommand returns the lower-cased first word of args without a trailing @botname.
func ParseCommand(args string) string {
	command := strings.Fields(args)
	if len(command) == 0 {
		return ""
	}

	cmd, _, _ := strings.Cut(command[0], "@")
	return strings.ToLower(cmd)
}
