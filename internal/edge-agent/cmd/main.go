package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/sensorbus/internal/config"
	edgeAgent "github.com/LeonardoBeccarini/sensorbus/internal/edge-agent"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/actuators"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/motion"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/sensors"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

func main() {
	cfg, err := config.LoadEdge()
	if err != nil {
		log.Fatalf("edge: %v", err)
	}
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Hardware ===
	gp := cfg.Edge.GPIO
	var dev hardware.Device
	if gp.Enabled {
		g, err := hardware.OpenGPIO(gp.Chip, []int{gp.PIRPin}, []int{gp.LEDPin, gp.BuzzerPin})
		if err != nil {
			log.Printf("edge: gpio unavailable, running simulated: %v", err)
		} else {
			dev = g
			defer g.Close()
		}
	} else {
		log.Printf("edge: gpio disabled, running simulated")
	}

	retry := sensors.WithRetry(cfg.Edge.Retry.Attempts, cfg.Edge.Retry.Delay)
	mc := cfg.Edge.Motion
	machine := motion.New(motion.Config{
		Calibration: mc.Calibration,
		Debounce:    mc.Debounce,
		Timeout:     mc.Timeout,
		History:     mc.History,
		EventBuffer: motion.DefaultConfig().EventBuffer,
	})
	poller := edgeAgent.NewPoller(cfg.Edge.DeviceID, cfg.Edge.Location,
		sensors.NewClimate(dev, gp.DHTPin, retry),
		sensors.NewLight(dev, gp.LightPin, retry),
		sensors.NewPresence(dev, gp.PIRPin, machine, retry),
	)

	// === Bus ===
	bus, err := mqttbus.Dial(ctx, cfg.MQTT, mqttbus.WithStateListener(func(s mqttbus.State) {
		log.Printf("edge: bus %s", s)
		metrics.SetBusConnected(s != mqttbus.StateDisconnected)
	}))
	if err != nil {
		log.Fatalf("edge: bus connection error: %v", err)
	}
	defer bus.Close()

	// === Metrics ===
	var ms *http.Server
	if cfg.Edge.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		ms = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Edge.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("edge: metrics listening on :%d", cfg.Edge.MetricsPort)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("edge: metrics server error: %v", err)
			}
		}()
	}

	agent := edgeAgent.NewAgent(bus, poller, edgeAgent.Options{
		Channels: cfg.Channel,
		DeviceID: cfg.Edge.DeviceID,
		Location: cfg.Edge.Location,
		Motion:   machine,
		Policy:   edgeAgent.MotionPolicy{PublishAlert: mc.Alerts, Beep: mc.Beep, Flash: mc.Flash},
		LED:      actuators.NewLED(dev, gp.LEDPin),
		Buzzer:   actuators.NewBuzzer(dev, gp.BuzzerPin),
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	log.Printf("edge: %s at %s publishing every %s", cfg.Edge.DeviceID, cfg.Edge.Location, cfg.Edge.ReadInterval)
	agent.Start(ctx, cfg.Edge.ReadInterval)

	if ms != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shCancel()
		_ = ms.Shutdown(shCtx)
	}
}
