// cmd/boardtest exercises the board bring-up without the control stack:
// enumerate the sensor bus, take a handful of readings, then sweep the
// cooler PWM so the drive stage can be checked with a meter.
package main

import (
	"time"

	"fridgecode-go/drivers/ds18b20"
	"fridgecode-go/onewire"
	"fridgecode-go/platform"
	"fridgecode-go/services/config"
	"fridgecode-go/types"
)

// ---------- Configuration ----------

const (
	board = "fridge-pico"

	// Sensor pass
	readings   = 5
	resolution = ds18b20.Bits12

	// PWM sweep
	sweepStep  = 100 // duty counts per step
	sweepDwell = 500 * time.Millisecond
)

func main() {
	time.Sleep(2 * time.Second)
	println("[boardtest] board:", board)

	raw, err := config.Load(board)
	if err != nil {
		println("[boardtest] config:", err.Error())
		return
	}
	thermoCfg := types.ThermoConfigFromMap(config.Section(raw, "thermo"))
	coolerCfg := types.CoolerConfigFromMap(config.Section(raw, "cooler"))

	prov, err := platform.New(thermoCfg, coolerCfg)
	if err != nil {
		println("[boardtest] platform:", err.Error())
		return
	}

	wire := onewire.New(prov.Pin, prov.DelayUs)
	devs := enumerate(wire)
	sample(wire, devs)
	sweep(prov, coolerCfg)

	println("[boardtest] done")
}

func enumerate(wire *onewire.Bus) []*ds18b20.Device {
	println("[boardtest] searching bus …")
	var devs []*ds18b20.Device
	search := wire.NewSearch()
	for {
		addr, ok, err := search.Next()
		if err != nil {
			println("[boardtest] search:", err.Error())
			break
		}
		if !ok {
			break
		}
		println("[boardtest] found", addr.String())
		if addr.FamilyCode() != ds18b20.Family {
			println("[boardtest]   (not a temperature sensor, skipping)")
			continue
		}
		dev := ds18b20.New(wire, addr)
		if err := dev.Configure(resolution); err != nil {
			println("[boardtest]   configure:", err.Error())
			continue
		}
		devs = append(devs, dev)
	}
	println("[boardtest]", len(devs), "sensor(s)")
	return devs
}

func sample(wire *onewire.Bus, devs []*ds18b20.Device) {
	for n := 0; n < readings; n++ {
		if err := ds18b20.ConvertAll(wire); err != nil {
			println("[boardtest] convert:", err.Error())
			continue
		}
		time.Sleep(resolution.ConversionTime())
		for _, dev := range devs {
			raw, err := dev.Collect()
			if err != nil {
				println("[boardtest]", dev.Address().String(), "read:", err.Error())
				continue
			}
			println("[boardtest]", dev.Address().String(), types.TempFromRaw(raw).String(), "C")
		}
	}
}

func sweep(prov *platform.Provider, cfg types.CoolerConfig) {
	println("[boardtest] PWM sweep 0 ->", int(cfg.MaxDuty), "-> 0")
	pwm := prov.CoolerPWM
	if err := pwm.Configure(cfg.FreqHz); err != nil {
		println("[boardtest] pwm:", err.Error())
		return
	}
	top := uint32(pwm.Top())
	for duty := 0; duty <= int(cfg.MaxDuty); duty += sweepStep {
		pwm.Set(uint16(uint32(duty) * top / uint32(cfg.MaxDuty)))
		println("[boardtest] duty", duty)
		time.Sleep(sweepDwell)
	}
	for duty := int(cfg.MaxDuty); duty >= 0; duty -= sweepStep {
		pwm.Set(uint16(uint32(duty) * top / uint32(cfg.MaxDuty)))
		time.Sleep(sweepDwell)
	}
	pwm.Set(0)
}
