// Package heartbeat emits a periodic liveness line to the diagnostic sink
// and a retained uptime message on the bus. It carries no control data; its
// absence from the log is the first thing an operator notices when the
// system wedges.
package heartbeat

import (
	"context"

	"fridgecode-go/bus"
	"fridgecode-go/diag"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
	"fridgecode-go/x/timex"
)

var (
	topicStatus    = bus.T("safety", "status")
	topicHeartbeat = bus.T("heartbeat")
)

// Service publishes the heartbeat.
type Service struct {
	PeriodMs int64      // default 10s
	Sink     *diag.Sink // may be nil
}

// Start launches the heartbeat task.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.PeriodMs <= 0 {
		s.PeriodMs = 10_000
	}
	tasks.Go(ctx, tasks.Task{
		Name:     "heartbeat",
		Priority: tasks.PriorityDiag,
		Run:      func(ctx context.Context) { s.loop(ctx, conn) },
	})
	return nil
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	statusSub := conn.SubscribeN(topicStatus, 1)
	defer conn.Disconnect()

	period := tasks.NewPeriodic(s.PeriodMs)
	var status types.Status
	for {
		tick, _, ok := period.Wait(ctx)
		if !ok {
			return
		}
		select {
		case msg := <-statusSub.Channel():
			status = msg.Payload.(types.Status)
		default:
		}

		if s.Sink != nil {
			s.Sink.Logf("heartbeat: up=%d state=%s temp=%s duty=%d",
				int64(timex.Now()), status.State, status.Temp.String(), int(status.Duty))
		}
		conn.Publish(conn.NewMessage(topicHeartbeat, tick, true))
	}
}
