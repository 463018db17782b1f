package command

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"

	"github.com/rs/zerolog/log"
)

type Debug struct {
	textSender port.TextSender
	pool       port.PoolStatter
	auth       service.Authorizer
	command    string
}

func NewDebug(sender port.TextSender, pool port.PoolStatter, auth service.Authorizer, command string) *Debug {
	return &Debug{textSender: sender, pool: pool, auth: auth, command: command}
}

func (d *Debug) GetCommand() string {
	return d.command
}

const kb = 1024
const debugTemplate = `allocated mem: %d KB
threads running: %d
heap: %d KB
stack: %d KB
compiled with %s for %s-%s
`
const poolTemplate = `transfers running: %d/%d
transfers queued: %d/%d
transfers completed: %d, failed: %d, rejected: %d
`
const metricCount = 3

func (d *Debug) Respond(ctx context.Context, _ time.Duration, message *domain.Message) error {
	l := log.With().
		Int("messageId", message.ID).
		Int64("chatId", message.ChatID).
		Str("command", d.GetCommand()).
		Logger()

	data := make([]metrics.Sample, metricCount)
	data[0] = metrics.Sample{Name: "/memory/classes/heap/objects:bytes"}
	data[1] = metrics.Sample{Name: "/memory/classes/heap/stacks:bytes"}
	data[2] = metrics.Sample{Name: "/memory/classes/total:bytes"}

	metrics.Read(data)

	l.Info().Msg("handling request")

	if !d.auth.IsAuthorized(ctx, message.ChatID) {
		l.Debug().Msg("not authorized")
		return nil
	}

	for _, sample := range data {
		l.Debug().Str("name", sample.Name).Msgf("%d", sample.Value.Uint64())
	}

	var goos, goarch string
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "GOOS":
				goos = setting.Value
			case "GOARCH":
				goarch = setting.Value
			}
		}
	}

	text := fmt.Sprintf(
		debugTemplate,
		data[2].Value.Uint64()/kb,
		runtime.NumGoroutine(),
		data[0].Value.Uint64()/kb,
		data[1].Value.Uint64()/kb,
		runtime.Version(), goos, goarch,
	)

	if d.pool != nil {
		st := d.pool.Stats()
		text += fmt.Sprintf(poolTemplate, st.Busy, st.Workers, st.Queued, st.QueueSize,
			st.Completed, st.Failed, st.Rejected)
	}

	_, err := d.textSender.SendMessageReply(ctx, message, text)
	return err
}
