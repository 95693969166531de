package main

import (
	"context"
	"os"
	"time"

	"fridgecode-go/bus"
	"fridgecode-go/cooler"
	"fridgecode-go/diag"
	"fridgecode-go/onewire"
	"fridgecode-go/platform"
	"fridgecode-go/services/config"
	"fridgecode-go/services/heartbeat"
	"fridgecode-go/services/safety"
	"fridgecode-go/services/tempctl"
	"fridgecode-go/services/terminal"
	"fridgecode-go/services/thermo"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
)

const board = "fridge-pico"

// Boot order matters: the duty limit and cooler exist before any task that
// can command them, and the watchdog is armed only after the safety task is
// refreshing it.
func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot, board:", board)

	raw, err := config.Load(board)
	if err != nil {
		println("[main] config:", err.Error())
		return
	}
	thermoCfg := types.ThermoConfigFromMap(config.Section(raw, "thermo"))
	controlCfg := types.ControlConfigFromMap(config.Section(raw, "control"))
	coolerCfg := types.CoolerConfigFromMap(config.Section(raw, "cooler"))
	safetyCfg := types.SafetyConfigFromMap(config.Section(raw, "safety"))

	println("[main] bringing up board …")
	prov, err := platform.New(thermoCfg, coolerCfg)
	if err != nil {
		println("[main] platform:", err.Error())
		return
	}

	ctx := context.Background()
	b := bus.New(thermoCfg.QueueLen)
	sink := diag.NewSink(4096)
	monitor := &tasks.Monitor{}

	limit := safety.NewDutyLimit(coolerCfg.MaxDuty)
	drv, err := cooler.New(prov.CoolerPWM, prov.FanPWM, limit, coolerCfg)
	if err != nil {
		println("[main] cooler:", err.Error())
		return
	}

	println("[main] starting services …")
	cfgSvc := &config.Service{Board: board}
	if err := cfgSvc.Start(ctx, b.NewConnection("config")); err != nil {
		println("[main] config service:", err.Error())
		return
	}

	thermoSvc := &thermo.Service{
		Cfg:     thermoCfg,
		Wire:    onewire.New(prov.Pin, prov.DelayUs),
		Monitor: monitor,
		Sink:    sink,
	}
	if err := thermoSvc.Start(ctx, b.NewConnection("thermo")); err != nil {
		println("[main] thermo:", err.Error())
		return
	}

	ctlSvc := &tempctl.Service{
		Cfg:          controlCfg,
		Driver:       drv,
		Monitor:      monitor,
		Sink:         sink,
		SamplePeriod: thermoCfg.PeriodMs,
	}
	if err := ctlSvc.Start(ctx, b.NewConnection("control")); err != nil {
		println("[main] control:", err.Error())
		return
	}

	safSvc := &safety.Service{
		Cfg:      safetyCfg,
		Limit:    limit,
		FullDuty: coolerCfg.MaxDuty,
		Monitor:  monitor,
		Watchdog: prov.Watchdog,
		Stopper:  drv,
		Sink:     sink,
	}
	if err := safSvc.Start(ctx, b.NewConnection("safety")); err != nil {
		println("[main] safety:", err.Error())
		return
	}

	termSvc := &terminal.Service{
		In:             prov.TerminalIn,
		Out:            prov.TerminalOut,
		Reset:          prov.Resetter,
		InitSetpoint:   types.TempFromCelsius(controlCfg.SetpointC),
		InitGains:      types.Gains{Kp: controlCfg.KpQ16, Ki: controlCfg.KiQ16, Kd: controlCfg.KdQ16},
		InitResolution: thermoCfg.Resolution,
	}
	if err := termSvc.Start(ctx, b.NewConnection("terminal")); err != nil {
		println("[main] terminal:", err.Error())
		return
	}

	hbSvc := &heartbeat.Service{Sink: sink}
	if err := hbSvc.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[main] heartbeat:", err.Error())
		return
	}

	println("[main] arming watchdog …")
	platform.ArmWatchdog(safetyCfg.WatchdogMs)

	println("[main] running")
	sink.Run(ctx, os.Stdout)
}
