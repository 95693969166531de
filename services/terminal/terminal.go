// Package terminal is the line-oriented serial console. It owns no hardware
// and no control state: every command turns into a bus message, every piece
// of status it prints comes off the bus. The console runs at diag priority;
// losing terminal responsiveness under load is acceptable, disturbing
// control is not.
package terminal

import (
	"context"
	"io"

	"github.com/google/shlex"

	"fridgecode-go/bus"
	"fridgecode-go/errcode"
	"fridgecode-go/onewire"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
	"fridgecode-go/x/fmtx"
	"fridgecode-go/x/strconvx"
	"fridgecode-go/x/timex"
)

var (
	topicDevices       = bus.T("thermo", "devices")
	topicMeasurement   = bus.T("thermo", "measurement")
	topicSetResolution = bus.T("thermo", "set_resolution")
	topicSetpoint      = bus.T("control", "setpoint")
	topicGains         = bus.T("control", "gains")
	topicEnable        = bus.T("control", "enable")
	topicFault         = bus.T("fault")
	topicAck           = bus.T("safety", "ack")
	topicStatus        = bus.T("safety", "status")
)

const helpText = `commands:
  help                 this text
  devices              list sensor ROM addresses
  temp                 current temperature
  history              recent temperature samples
  watch                stream temperatures until the next input line
  setpoint [c]         show or set the target, whole degrees C
  pid [kp ki kd]       show or set Q16.16 gains
  resolution [9..12]   show or set sensor resolution
  cooler on|off        enable or disable the control loop
  faults               recorded fault events
  ack                  acknowledge a safety shutdown
  status               safety state summary
  reset                reboot the board
`

// Resetter reboots the board. Nil on the host.
type Resetter interface {
	Reset()
}

// sample is one history entry.
type sample struct {
	tick timex.Tick
	temp types.Temp
}

// Service is the console task.
type Service struct {
	In      io.Reader
	Out     io.Writer
	Reset   Resetter // may be nil
	History int      // history ring length, default 64

	// Initial values shown before the operator changes anything.
	InitSetpoint   types.Temp
	InitGains      types.Gains
	InitResolution int

	setpoint   types.Temp
	gains      types.Gains
	resolution int
	enabled    bool
	watching   bool

	hist  []sample
	histN int // count of valid entries, saturates at len

	devices []onewire.Address
	status  types.Status
	faults  []types.FaultRecord
}

// Start launches the reader and console tasks.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.History <= 0 {
		s.History = 64
	}
	s.hist = make([]sample, s.History)
	s.setpoint = s.InitSetpoint
	s.gains = s.InitGains
	s.resolution = s.InitResolution
	s.enabled = true

	lines := make(chan string, 2)
	go readLines(s.In, lines)

	tasks.Go(ctx, tasks.Task{
		Name:     "terminal",
		Priority: tasks.PriorityDiag,
		Run:      func(ctx context.Context) { s.loop(ctx, conn, lines) },
	})
	return nil
}

// readLines feeds complete input lines into ch. Exits on read error.
func readLines(r io.Reader, ch chan<- string) {
	var buf [1]byte
	var line []byte
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			c := buf[0]
			if c == '\n' || c == '\r' {
				if len(line) > 0 {
					ch <- string(line)
					line = line[:0]
				}
				continue
			}
			line = append(line, c)
		}
		if err != nil {
			close(ch)
			return
		}
	}
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection, lines <-chan string) {
	devSub := conn.SubscribeN(topicDevices, 1)
	measSub := conn.SubscribeN(topicMeasurement, 4)
	statusSub := conn.SubscribeN(topicStatus, 1)
	faultSub := conn.SubscribeN(topicFault, 8)
	defer conn.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-devSub.Channel():
			s.devices = msg.Payload.([]onewire.Address)

		case msg := <-statusSub.Channel():
			s.status = msg.Payload.(types.Status)

		case msg := <-faultSub.Channel():
			s.faults = append(s.faults, msg.Payload.(types.FaultRecord))
			if len(s.faults) > 16 {
				s.faults = s.faults[len(s.faults)-16:]
			}

		case msg := <-measSub.Channel():
			m := msg.Payload.(types.Measurement)
			s.record(m)
			if s.watching && m.Valid {
				s.printf("%d %s\n", int64(m.Tick), m.Temp.String())
			}

		case line, open := <-lines:
			if !open {
				return
			}
			if s.watching {
				s.watching = false
				continue
			}
			s.dispatch(conn, line)
		}
	}
}

func (s *Service) record(m types.Measurement) {
	if !m.Valid {
		return
	}
	copy(s.hist[0:], s.hist[1:])
	s.hist[len(s.hist)-1] = sample{tick: m.Tick, temp: m.Temp}
	if s.histN < len(s.hist) {
		s.histN++
	}
}

func (s *Service) dispatch(conn *bus.Connection, line string) {
	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		s.printf("parse error\n")
		return
	}

	switch args[0] {
	case "help":
		s.printf("%s", helpText)

	case "devices":
		if len(s.devices) == 0 {
			s.printf("no sensors\n")
			return
		}
		for _, a := range s.devices {
			s.printf("%s\n", a.String())
		}

	case "temp":
		if s.histN == 0 {
			s.printf("no data\n")
			return
		}
		s.printf("%s\n", s.hist[len(s.hist)-1].temp.String())

	case "history":
		for i := len(s.hist) - s.histN; i < len(s.hist); i++ {
			s.printf("%d %s\n", int64(s.hist[i].tick), s.hist[i].temp.String())
		}

	case "watch":
		s.watching = true

	case "setpoint":
		s.cmdSetpoint(conn, args[1:])

	case "pid":
		s.cmdPID(conn, args[1:])

	case "resolution":
		s.cmdResolution(conn, args[1:])

	case "cooler":
		s.cmdCooler(conn, args[1:])

	case "faults":
		if len(s.faults) == 0 {
			s.printf("none\n")
			return
		}
		for _, f := range s.faults {
			if f.Sensor != 0 {
				s.printf("%d %s %s\n", int64(f.Tick), string(f.Kind), f.Sensor.String())
			} else {
				s.printf("%d %s\n", int64(f.Tick), string(f.Kind))
			}
		}

	case "ack":
		conn.Publish(conn.NewMessage(topicAck, struct{}{}, false))
		s.printf("ok\n")

	case "status":
		s.printf("state=%s reason=%s temp=%s valid=%t duty=%d faults=%d\n",
			s.status.State, string(s.status.Reason), s.status.Temp.String(),
			s.status.Valid, int(s.status.Duty), int(s.status.Faults))

	case "reset":
		s.printf("resetting\n")
		if s.Reset != nil {
			s.Reset.Reset()
		}

	default:
		s.printf("%s: %s\n", string(errcode.UnknownCommand), args[0])
	}
}

func (s *Service) cmdSetpoint(conn *bus.Connection, args []string) {
	if len(args) == 0 {
		s.printf("%s\n", s.setpoint.String())
		return
	}
	c, err := strconvx.ParseInt(args[0], 10, 32)
	if err != nil {
		s.printf("%s\n", string(errcode.InvalidParams))
		return
	}
	s.setpoint = types.TempFromCelsius(int32(c))
	conn.Publish(conn.NewMessage(topicSetpoint, s.setpoint, false))
	s.printf("ok\n")
}

func (s *Service) cmdPID(conn *bus.Connection, args []string) {
	if len(args) == 0 {
		s.printf("kp=%d ki=%d kd=%d\n", s.gains.Kp, s.gains.Ki, s.gains.Kd)
		return
	}
	if len(args) != 3 {
		s.printf("%s\n", string(errcode.InvalidParams))
		return
	}
	var vals [3]int32
	for i, a := range args {
		v, err := strconvx.ParseInt(a, 10, 32)
		if err != nil {
			s.printf("%s\n", string(errcode.InvalidParams))
			return
		}
		vals[i] = int32(v)
	}
	s.gains = types.Gains{Kp: vals[0], Ki: vals[1], Kd: vals[2]}
	conn.Publish(conn.NewMessage(topicGains, s.gains, false))
	s.printf("ok\n")
}

func (s *Service) cmdResolution(conn *bus.Connection, args []string) {
	if len(args) == 0 {
		s.printf("%d\n", s.resolution)
		return
	}
	v, err := strconvx.ParseInt(args[0], 10, 32)
	if err != nil || v < 9 || v > 12 {
		s.printf("%s\n", string(errcode.InvalidParams))
		return
	}
	s.resolution = int(v)
	conn.Publish(conn.NewMessage(topicSetResolution, int(v), false))
	s.printf("ok\n")
}

func (s *Service) cmdCooler(conn *bus.Connection, args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		s.printf("%s\n", string(errcode.InvalidParams))
		return
	}
	s.enabled = args[0] == "on"
	conn.Publish(conn.NewMessage(topicEnable, s.enabled, false))
	s.printf("ok\n")
}

func (s *Service) printf(format string, args ...any) {
	fmtx.Fprintf(s.Out, format, args...)
}
