package model

import (
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
)

// Aliases so services can import a single package for the common types.

type (
	Reading        = entities.Reading
	ReadingSummary = entities.ReadingSummary
	Alert          = entities.Alert
	DeviceState    = entities.DeviceState
	DeviceHistory  = entities.DeviceHistory
	MotionEvent    = entities.MotionEvent
	ChannelBinding = entities.ChannelBinding

	SensorData     = messages.SensorData
	ControlCommand = messages.ControlCommand
	AlertMessage   = messages.AlertMessage
	StateUpdate    = messages.StateUpdate
)

const (
	StateOn  = entities.StateOn
	StateOff = entities.StateOff
)
