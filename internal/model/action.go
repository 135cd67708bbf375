package model

// Action is a human-friendly operating mode for an hour.
// Keep these values stable; they are intended for CSV output.
type Action string

const (
	ActionCharging    Action = "CHARGING"
	ActionIdle        Action = "IDLE"
	ActionDischarging Action = "DISCHARGING"
)

// ActionFromNetMW maps net storage power (positive = discharge) to an Action.
func ActionFromNetMW(netMW float64) Action {
	switch {
	case netMW < 0:
		return ActionCharging
	case netMW > 0:
		return ActionDischarging
	default:
		return ActionIdle
	}
}
