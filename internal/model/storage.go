package model

import (
	"errors"
	"math"
)

// StorageAsset defines the physical parameters of one storage asset.
// Units:
// - EnergyCapacityMWh: MWh
// - PowerRatingMW: MW, symmetric for charge and discharge
// - Efficiencies: (0, 1], product = round-trip efficiency
//
// State of charge is in MWh and bounded to [0, EnergyCapacityMWh].
type StorageAsset struct {
	EnergyCapacityMWh   float64
	PowerRatingMW       float64
	ChargeEfficiency    float64
	DischargeEfficiency float64
}

// NewStorageAsset derives an asset from capacity, duration (capacity / power)
// and round-trip efficiency, split evenly between charge and discharge.
func NewStorageAsset(capacityMWh, durationHours, roundTrip float64) (StorageAsset, error) {
	if durationHours <= 0 {
		return StorageAsset{}, ConfigErrorf("STORAGE", "duration must be > 0 hours")
	}
	if roundTrip <= 0 || roundTrip > 1 {
		return StorageAsset{}, ConfigErrorf("STORAGE", "round-trip efficiency must be in (0, 1]")
	}
	eff := math.Sqrt(roundTrip)
	a := StorageAsset{
		EnergyCapacityMWh:   capacityMWh,
		PowerRatingMW:       capacityMWh / durationHours,
		ChargeEfficiency:    eff,
		DischargeEfficiency: eff,
	}
	if err := a.Validate(); err != nil {
		return StorageAsset{}, err
	}
	return a, nil
}

// RoundTripEfficiency is charge efficiency times discharge efficiency.
func (a StorageAsset) RoundTripEfficiency() float64 {
	return a.ChargeEfficiency * a.DischargeEfficiency
}

// IsZero reports an asset that cannot move energy.
func (a StorageAsset) IsZero() bool {
	return a.EnergyCapacityMWh == 0 || a.PowerRatingMW == 0
}

// Validate returns a configuration error for physically invalid parameters.
// Zero capacity or power is valid and describes an absent asset.
func (a StorageAsset) Validate() error {
	var err error
	switch {
	case !finite(a.EnergyCapacityMWh, a.PowerRatingMW, a.ChargeEfficiency, a.DischargeEfficiency):
		err = errors.New("storage parameters must be finite")
	case a.EnergyCapacityMWh < 0:
		err = errors.New("EnergyCapacityMWh must be >= 0")
	case a.PowerRatingMW < 0:
		err = errors.New("PowerRatingMW must be >= 0")
	case a.ChargeEfficiency <= 0 || a.ChargeEfficiency > 1:
		err = errors.New("ChargeEfficiency must be in (0, 1]")
	case a.DischargeEfficiency <= 0 || a.DischargeEfficiency > 1:
		err = errors.New("DischargeEfficiency must be in (0, 1]")
	}
	if err != nil {
		return &Error{Class: ClassConfig, Code: "STORAGE", Message: "storage asset invalid", Err: err}
	}
	return nil
}

// ValidateSOC checks an initial state of charge against the asset bounds.
func (a StorageAsset) ValidateSOC(socMWh float64) error {
	if math.IsNaN(socMWh) || socMWh < 0 || socMWh > a.EnergyCapacityMWh {
		return ConfigErrorf("INITIAL_SOC", "initial SOC %.3f MWh outside [0, %.3f]", socMWh, a.EnergyCapacityMWh)
	}
	return nil
}
