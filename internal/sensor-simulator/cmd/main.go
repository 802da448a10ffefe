package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/config"
	sensorSimulator "github.com/LeonardoBeccarini/sensorbus/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

func main() {
	devices := flag.Int("devices", 3, "number of virtual devices")
	prefix := flag.String("prefix", "sim", "device id prefix")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	baseline := flag.Float64("baseline", 22, "baseline temperature")
	halfLife := flag.Duration("half-life", 5*time.Minute, "time for half of a spike to fade")
	spikeEvery := flag.Duration("spike-every", 2*time.Minute, "heat a random device on this period (0 disables)")
	spike := flag.Float64("spike", 12, "degrees added by a spike")
	flag.Parse()

	// bus settings and channel names come from the same config as the edge agent
	cfg, err := config.LoadEdge()
	if err != nil {
		log.Fatalf("simulator: %v", err)
	}
	cfg.MQTT.ClientID = cfg.MQTT.ClientID + "-sim"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := mqttbus.Dial(ctx, cfg.MQTT)
	if err != nil {
		log.Fatalf("simulator: bus connection error: %v", err)
	}
	defer bus.Close()

	fleet := make([]sensorSimulator.Device, 0, *devices)
	for i := 1; i <= *devices; i++ {
		id := fmt.Sprintf("%s-%02d", *prefix, i)
		fleet = append(fleet, sensorSimulator.NewDevice(id, cfg.Edge.Location, sensorSimulator.NewDataGenerator(*baseline, *halfLife)))
	}
	sim := sensorSimulator.NewSensorSimulator(bus, cfg.Channel.Sensor, fleet...)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	log.Printf("simulator: %d devices on %s every %s", *devices, cfg.Channel.Sensor, *interval)
	sim.Start(ctx, *interval, *spikeEvery, *spike)
}
