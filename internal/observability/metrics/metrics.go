package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sensorbus_"

	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

var (
	registerOnce sync.Once

	busMessages      *prometheus.CounterVec
	readingsTotal    *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec
	controlCommands  *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	storeFailures    *prometheus.CounterVec
	busConnected     prometheus.Gauge
	readingSummary   *prometheus.GaugeVec
	motionEvents     *prometheus.CounterVec
	sensorReadErrors *prometheus.CounterVec
)

// Init registers the collectors on the default registry. Helpers are no-ops before Init.
func Init() {
	registerOnce.Do(func() {
		busMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bus_messages_total",
				Help: "Bus messages handled by channel and result",
			},
			[]string{"channel", "result"},
		)
		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Readings ingested by sensor type",
			},
			[]string{"sensor_type"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Alerts raised or received by type and severity",
			},
			[]string{"alert_type", "severity"},
		)
		controlCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "control_commands_total",
				Help: "Control commands by device and result",
			},
			[]string{"device", "result"},
		)
		publishFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_failures_total",
				Help: "Messages that could not be published, by channel",
			},
			[]string{"channel"},
		)
		storeFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_failures_total",
				Help: "Persistence failures by operation",
			},
			[]string{"op"},
		)
		busConnected = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "bus_connected",
				Help: "1 when the bus connection is open",
			},
		)
		readingSummary = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "reading_summary",
				Help: "Last aggregation window per device, sensor type and statistic",
			},
			[]string{"device_id", "sensor_type", "stat"},
		)
		motionEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "edge_motion_events_total",
				Help: "Motion transitions seen by the edge agent",
			},
			[]string{"kind"},
		)
		sensorReadErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "edge_sensor_read_errors_total",
				Help: "Sensor reads that failed after retries",
			},
			[]string{"sensor"},
		)

		prometheus.MustRegister(
			busMessages,
			readingsTotal,
			alertsTotal,
			controlCommands,
			publishFailures,
			storeFailures,
			busConnected,
			readingSummary,
			motionEvents,
			sensorReadErrors,
		)
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// IncBusMessage counts one inbound message.
func IncBusMessage(channel, result string) {
	if busMessages != nil {
		busMessages.WithLabelValues(orUnknown(channel), orUnknown(result)).Inc()
	}
}

func IncReading(sensorType string) {
	if readingsTotal != nil {
		readingsTotal.WithLabelValues(orUnknown(sensorType)).Inc()
	}
}

func IncAlert(alertType, severity string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(orUnknown(alertType), orUnknown(severity)).Inc()
	}
}

func IncControlCommand(device, result string) {
	if controlCommands != nil {
		controlCommands.WithLabelValues(orUnknown(device), orUnknown(result)).Inc()
	}
}

func IncPublishFailure(channel string) {
	if publishFailures != nil {
		publishFailures.WithLabelValues(orUnknown(channel)).Inc()
	}
}

func IncStoreFailure(op string) {
	if storeFailures != nil {
		storeFailures.WithLabelValues(orUnknown(op)).Inc()
	}
}

// SetBusConnected mirrors the connection state listener.
func SetBusConnected(up bool) {
	if busConnected == nil {
		return
	}
	if up {
		busConnected.Set(1)
	} else {
		busConnected.Set(0)
	}
}

func SetReadingSummary(deviceID, sensorType, stat string, v float64) {
	if readingSummary != nil {
		readingSummary.WithLabelValues(orUnknown(deviceID), orUnknown(sensorType), stat).Set(v)
	}
}

func IncMotionEvent(kind string) {
	if motionEvents != nil {
		motionEvents.WithLabelValues(orUnknown(kind)).Inc()
	}
}

func IncSensorReadError(sensor string) {
	if sensorReadErrors != nil {
		sensorReadErrors.WithLabelValues(orUnknown(sensor)).Inc()
	}
}
