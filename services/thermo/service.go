// Package thermo owns the one-wire line and the DS18B20 population on it.
// It is the only task that touches the bus hardware: discovery at startup,
// a broadcast conversion per sampling period, then a collect per sensor.
// Everything downstream sees bus messages, never the wire.
package thermo

import (
	"context"

	"fridgecode-go/bus"
	"fridgecode-go/diag"
	"fridgecode-go/drivers/ds18b20"
	"fridgecode-go/errcode"
	"fridgecode-go/onewire"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
	"fridgecode-go/x/timex"
)

var (
	topicReading       = bus.T("thermo", "reading")
	topicMeasurement   = bus.T("thermo", "measurement")
	topicSensorCount   = bus.T("thermo", "sensors")
	topicDevices       = bus.T("thermo", "devices")
	topicFault         = bus.T("fault")
	topicSetResolution = bus.T("thermo", "set_resolution")
)

// sensor is the per-device sampling state. A sensor whose consecutive
// failure count reaches the retry limit is permanently faulted: it is no
// longer polled and a fault record goes to the supervisor exactly once.
type sensor struct {
	dev    *ds18b20.Device
	consec int
	dead   bool
}

// Service is the sampling task.
type Service struct {
	Cfg     types.ThermoConfig
	Wire    *onewire.Bus
	Monitor *tasks.Monitor // may be nil
	Sink    *diag.Sink     // may be nil

	sensors []*sensor
	res     ds18b20.Resolution
	lastAvg types.Temp
}

// Start discovers the sensor population and launches the sampling task.
// Discovery failure is not fatal: the task keeps running with zero sensors
// and the supervisor decides what that means.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.res = resolutionFromConfig(s.Cfg.Resolution)
	s.discover()
	for _, sn := range s.sensors {
		if err := sn.dev.Configure(s.res); err != nil {
			s.logf("thermo: configure %s: %s", sn.dev.Address().String(), err.Error())
		}
	}
	s.publishPopulation(conn)

	tasks.Go(ctx, tasks.Task{
		Name:     "sampling",
		Priority: tasks.PrioritySampling,
		Run:      func(ctx context.Context) { s.loop(ctx, conn) },
	})
	return nil
}

func resolutionFromConfig(bits int) ds18b20.Resolution {
	if bits < 9 || bits > 12 {
		return ds18b20.Bits12
	}
	return ds18b20.Resolution(bits)
}

// discover fills the sensor list, preferring statically configured
// addresses over a bus search.
func (s *Service) discover() {
	if len(s.Cfg.Sensors) > 0 {
		for _, hex := range s.Cfg.Sensors {
			if err := s.addConfigured(hex); err != nil {
				s.logf("thermo: configured address %s: %s", hex, err.Error())
			}
		}
		return
	}

	search := s.Wire.NewSearch()
	for len(s.sensors) < s.Cfg.MaxSensors {
		addr, ok, err := search.Next()
		if err != nil {
			s.logf("thermo: search: %s", err.Error())
			return
		}
		if !ok {
			return
		}
		if addr.FamilyCode() != ds18b20.Family {
			continue
		}
		s.addSensor(addr)
	}
}

// addConfigured validates one statically configured ROM: it must parse,
// carry a good CRC and belong to the temperature-sensor family.
func (s *Service) addConfigured(hex string) error {
	addr, err := onewire.ParseAddress(hex)
	if err != nil {
		return err
	}
	if !addr.Valid() {
		return onewire.ErrCRC
	}
	if addr.FamilyCode() != ds18b20.Family {
		return onewire.ErrFamilyCode
	}
	s.addSensor(addr)
	return nil
}

func (s *Service) addSensor(addr onewire.Address) {
	if len(s.sensors) >= s.Cfg.MaxSensors && s.Cfg.MaxSensors > 0 {
		return
	}
	s.sensors = append(s.sensors, &sensor{dev: ds18b20.New(s.Wire, addr)})
}

// Addresses returns the discovered ROM addresses, in sampling order.
func (s *Service) Addresses() []onewire.Address {
	out := make([]onewire.Address, len(s.sensors))
	for i, sn := range s.sensors {
		out[i] = sn.dev.Address()
	}
	return out
}

func (s *Service) publishPopulation(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(topicSensorCount, len(s.sensors), true))
	conn.Publish(conn.NewMessage(topicDevices, s.Addresses(), true))
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	resSub := conn.Subscribe(topicSetResolution)
	defer conn.Disconnect()

	var checkIn *tasks.CheckIn
	if s.Monitor != nil {
		// Budget: the period plus the worst-case conversion wait.
		budget := 2 * (s.Cfg.PeriodMs + int64(s.res.ConversionTime().Milliseconds()))
		checkIn = s.Monitor.Register("sampling", budget)
	}

	period := tasks.NewPeriodic(s.Cfg.PeriodMs)
	for {
		tick, _, ok := period.Wait(ctx)
		if !ok {
			return
		}

		select {
		case msg := <-resSub.Channel():
			s.applyResolution(msg.Payload.(int))
		default:
		}

		s.sample(ctx, tick, conn)
		if checkIn != nil {
			checkIn.Beat()
		}
	}
}

func (s *Service) applyResolution(bits int) {
	res := resolutionFromConfig(bits)
	s.res = res
	for _, sn := range s.sensors {
		if sn.dead {
			continue
		}
		if err := sn.dev.Configure(res); err != nil {
			s.logf("thermo: set resolution %s: %s", sn.dev.Address().String(), err.Error())
		}
	}
	s.logf("thermo: resolution %d bits", bits)
}

// sample runs one conversion cycle: broadcast, wait out the conversion,
// collect every live sensor, publish per-sensor readings and the mean.
func (s *Service) sample(ctx context.Context, tick timex.Tick, conn *bus.Connection) {
	if err := ds18b20.ConvertAll(s.Wire); err != nil {
		// The whole line is down this cycle; every sensor takes a strike.
		for _, sn := range s.sensors {
			s.strike(sn, tick, errcode.SensorTimeout, conn)
		}
		s.publishMeasurement(tick, 0, 0, conn)
		return
	}

	if !timex.DelayUntil(ctx, tick+timex.Ticks(s.res.ConversionTime())) {
		return
	}

	var sum int64
	var contributed uint8
	for _, sn := range s.sensors {
		if sn.dead {
			continue
		}
		raw, err := sn.dev.Collect()
		if err != nil {
			code := errcode.SensorTimeout
			if err == onewire.ErrCRC {
				code = errcode.CrcFailure
			}
			s.strike(sn, tick, code, conn)
			conn.Publish(conn.NewMessage(topicReading, types.SensorReading{
				Addr: sn.dev.Address(), Tick: tick,
			}, false))
			continue
		}
		sn.consec = 0
		temp := types.TempFromRaw(raw)
		sum += int64(temp)
		contributed++
		conn.Publish(conn.NewMessage(topicReading, types.SensorReading{
			Addr: sn.dev.Address(), Temp: temp, Tick: tick, Valid: true,
		}, false))
	}

	s.publishMeasurement(tick, sum, contributed, conn)
}

// strike charges one failure against a sensor; crossing the retry limit
// kills it and raises a single permanent fault.
func (s *Service) strike(sn *sensor, tick timex.Tick, code errcode.Code, conn *bus.Connection) {
	if sn.dead {
		return
	}
	sn.consec++
	if sn.consec < s.Cfg.RetryLimit {
		return
	}
	sn.dead = true
	s.logf("thermo: sensor %s dead (%s)", sn.dev.Address().String(), string(code))
	conn.Publish(conn.NewMessage(topicFault, types.FaultRecord{
		Kind:   errcode.SensorFault,
		Tick:   tick,
		Sensor: sn.dev.Address(),
	}, false))
}

func (s *Service) publishMeasurement(tick timex.Tick, sum int64, contributed uint8, conn *bus.Connection) {
	m := types.Measurement{Tick: tick, Healthy: s.healthyCount()}
	if contributed > 0 {
		m.Temp = types.Temp(sum / int64(contributed))
		m.Valid = true
		s.lastAvg = m.Temp
	} else {
		m.Temp = s.lastAvg
	}
	conn.Publish(conn.NewMessage(topicMeasurement, m, false))
}

func (s *Service) healthyCount() uint8 {
	var n uint8
	for _, sn := range s.sensors {
		if !sn.dead {
			n++
		}
	}
	return n
}

func (s *Service) logf(format string, args ...any) {
	if s.Sink != nil {
		s.Sink.Logf(format, args...)
	}
}
