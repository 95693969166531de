package safety

import (
	"context"

	"fridgecode-go/bus"
	"fridgecode-go/diag"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
	"fridgecode-go/x/timex"
)

var (
	topicMeasurement = bus.T("thermo", "measurement")
	topicSensorCount = bus.T("thermo", "sensors")
	topicFault       = bus.T("fault")
	topicDuty        = bus.T("control", "duty")
	topicAck         = bus.T("safety", "ack")
	topicStatus      = bus.T("safety", "status")
)

// Watchdog is the hardware watchdog surface. Refresh must be called within
// the configured timeout or the hardware resets the board.
type Watchdog interface {
	Refresh()
}

// Stopper force-stops the actuator, bypassing ramps.
type Stopper interface {
	ForceOff(tick timex.Tick)
}

// Service runs the supervisor as the highest-priority periodic task.
type Service struct {
	Cfg      types.SafetyConfig
	Limit    *DutyLimit
	FullDuty uint16

	Monitor  *tasks.Monitor // may be nil
	Watchdog Watchdog       // may be nil on the host
	Stopper  Stopper        // may be nil
	Sink     *diag.Sink     // may be nil

	sup *Supervisor
}

// Start launches the supervisor task.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.sup = NewSupervisor(s.Cfg, s.Limit, s.FullDuty)
	tasks.Go(ctx, tasks.Task{
		Name:     "safety",
		Priority: tasks.PrioritySafety,
		Run:      func(ctx context.Context) { s.loop(ctx, conn) },
	})
	return nil
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	measSub := conn.SubscribeN(topicMeasurement, 1)
	countSub := conn.SubscribeN(topicSensorCount, 1)
	faultSub := conn.SubscribeN(topicFault, maxFaults)
	dutySub := conn.SubscribeN(topicDuty, 1)
	ackSub := conn.Subscribe(topicAck)
	defer conn.Disconnect()

	var checkIn *tasks.CheckIn
	if s.Monitor != nil {
		checkIn = s.Monitor.Register("safety", s.Cfg.WatchdogMs)
	}

	period := tasks.NewPeriodic(s.Cfg.PeriodMs)
	var (
		meas  types.Measurement
		total uint8
		duty  uint16
	)
	prevState := Normal

	for {
		tick, missedOwn, ok := period.Wait(ctx)
		if !ok {
			return
		}

		// Fold in everything that arrived since the last cycle.
		in := Input{Tick: tick}
	drain:
		for {
			select {
			case msg := <-measSub.Channel():
				meas = msg.Payload.(types.Measurement)
			case msg := <-countSub.Channel():
				total = uint8(msg.Payload.(int))
			case msg := <-faultSub.Channel():
				in.Faults = append(in.Faults, msg.Payload.(types.FaultRecord))
			case msg := <-dutySub.Channel():
				duty = msg.Payload.(uint16)
			case <-ackSub.Channel():
				s.sup.Acknowledge()
			default:
				break drain
			}
		}

		in.Temp = meas.Temp
		in.Valid = meas.Valid
		in.Healthy = meas.Healthy
		in.Total = total
		if s.Monitor != nil {
			in.SchedFault = len(s.Monitor.Stale(tick)) > 0
		}
		// The supervisor missing its own deadline is a scheduling fault too.
		if missedOwn {
			in.SchedFault = true
		}

		state, reason := s.sup.Step(in)
		if state == Shutdown && prevState != Shutdown {
			if s.Stopper != nil {
				s.Stopper.ForceOff(tick)
			}
			if s.Sink != nil {
				s.Sink.Logf("safety: shutdown (%s)", string(reason))
			}
		}
		if state != prevState && s.Sink != nil && state != Shutdown {
			s.Sink.Logf("safety: %s (%s)", state.String(), string(reason))
		}
		prevState = state

		if s.Watchdog != nil && s.sup.RefreshAllowed() {
			s.Watchdog.Refresh()
		}
		if checkIn != nil {
			checkIn.BeatAt(tick)
		}

		conn.Publish(conn.NewMessage(topicStatus, types.Status{
			State:  state.String(),
			Reason: reason,
			Temp:   meas.Temp,
			Valid:  meas.Valid,
			Duty:   duty,
			Faults: uint8(len(s.sup.Faults())),
			Tick:   tick,
		}, true))
	}
}
