package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"go_adc/adc"
)

func main() {
	portVal := flag.String("port", "/dev/ttyUSB0", "serial port name")
	configVal := flag.String("config", "config.json", "path to the bus-selection config file")
	lookupVal := flag.String("lookup", "lookup.csv", "path to the za_deg,adc_deg lookup table")
	methodVal := flag.String("method", string(adc.MethodPCHIP), "interpolation method: pchip, cubic, or akima")
	flag.Parse()

	zl, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	config := adc.LoadConfig(*configVal, logger)

	zaDeg, adcDeg, err := adc.LoadLookupTable(*lookupVal)
	if err != nil {
		logger.Fatalw("failed to load lookup table", "path", *lookupVal, "error", err)
	}
	lookup, err := adc.NewLookup(zaDeg, adcDeg, adc.InterpMethod(*methodVal))
	if err != nil {
		logger.Fatalw("failed to fit lookup table", "error", err)
	}

	bus := adc.NewSerialBusDriver(*portVal)
	controller := adc.NewController(bus, lookup, config, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		logger.Info("interrupt received, powering off")
		controller.PowerOff()
		os.Exit(0)
	}()

	logger.Info("powering on")
	if resp := controller.PowerOn(); resp.Status != "success" {
		logger.Fatalw("power on failed", "message", resp.Message)
	}

	logger.Info("connecting devices")
	if resp := controller.Connect(0); resp.Status != "success" {
		logger.Fatalw("connect failed", "message", resp.Message)
	}

	logger.Info("homing")
	ctx := context.Background()
	if resp := controller.Homing(ctx, int(adc.MinVelocity)); resp.Status != "success" {
		logger.Errorw("homing failed", "message", resp.Message)
	}

	logger.Info("demonstrating activate at zenith angle 30 degrees")
	resp := controller.Activate(ctx, 30.0, 3)
	logger.Infow("activate result", "status", resp.Status, "message", resp.Message)

	controller.PowerOff()
}
