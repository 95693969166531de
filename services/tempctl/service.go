// Package tempctl is the control task: it turns each temperature
// measurement into an actuator command and applies it. The cycle is paced
// by the sampling task's measurements rather than its own timer, so control
// acts exactly once on every sample and never on a stale one.
package tempctl

import (
	"context"

	"fridgecode-go/bus"
	"fridgecode-go/control"
	"fridgecode-go/cooler"
	"fridgecode-go/diag"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
)

var (
	topicMeasurement = bus.T("thermo", "measurement")
	topicDuty        = bus.T("control", "duty")
	topicSetpoint    = bus.T("control", "setpoint")
	topicGains       = bus.T("control", "gains")
	topicEnable      = bus.T("control", "enable")
)

// Service wires the PID to the cooler driver.
type Service struct {
	Cfg          types.ControlConfig
	Driver       *cooler.Driver
	Monitor      *tasks.Monitor // may be nil
	Sink         *diag.Sink     // may be nil
	SamplePeriod int64          // sampling period in ms, for the check-in budget

	pid     *control.PID
	enabled bool
}

// Start launches the control task.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.pid = control.New(s.Cfg)
	s.enabled = true
	tasks.Go(ctx, tasks.Task{
		Name:     "control",
		Priority: tasks.PriorityControl,
		Run:      func(ctx context.Context) { s.loop(ctx, conn) },
	})
	return nil
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	measSub := conn.SubscribeN(topicMeasurement, 1)
	setpointSub := conn.Subscribe(topicSetpoint)
	gainsSub := conn.Subscribe(topicGains)
	enableSub := conn.Subscribe(topicEnable)
	defer conn.Disconnect()

	var checkIn *tasks.CheckIn
	if s.Monitor != nil {
		budget := 4 * s.SamplePeriod
		if budget == 0 {
			budget = 8000
		}
		checkIn = s.Monitor.Register("control", budget)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-setpointSub.Channel():
			s.setpoint(msg)

		case msg := <-gainsSub.Channel():
			s.gains(msg)

		case msg := <-enableSub.Channel():
			s.enable(msg)

		case msg := <-measSub.Channel():
			// Commands already queued apply to this cycle.
			s.drainCommands(setpointSub, gainsSub, enableSub)
			m := msg.Payload.(types.Measurement)
			cmd := s.pid.Update(m)
			if !s.enabled {
				cmd = types.ActuatorCommand{Direction: types.DirIdle, Tick: m.Tick}
			}
			applied := s.Driver.Apply(cmd)
			conn.Publish(conn.NewMessage(topicDuty, applied, false))
			if checkIn != nil {
				checkIn.BeatAt(m.Tick)
			}
		}
	}
}

func (s *Service) drainCommands(setpointSub, gainsSub, enableSub *bus.Subscription) {
	for {
		select {
		case msg := <-setpointSub.Channel():
			s.setpoint(msg)
		case msg := <-gainsSub.Channel():
			s.gains(msg)
		case msg := <-enableSub.Channel():
			s.enable(msg)
		default:
			return
		}
	}
}

func (s *Service) setpoint(msg *bus.Message) {
	t := msg.Payload.(types.Temp)
	s.pid.SetSetpoint(t)
	s.logf("control: setpoint %s", t.String())
}

func (s *Service) gains(msg *bus.Message) {
	g := msg.Payload.(types.Gains)
	s.pid.SetGains(g.Kp, g.Ki, g.Kd)
	s.logf("control: gains %d %d %d", g.Kp, g.Ki, g.Kd)
}

func (s *Service) enable(msg *bus.Message) {
	s.enabled = msg.Payload.(bool)
	if !s.enabled {
		s.pid.Reset()
	}
	s.logf("control: enabled=%t", s.enabled)
}

func (s *Service) logf(format string, args ...any) {
	if s.Sink != nil {
		s.Sink.Logf(format, args...)
	}
}
