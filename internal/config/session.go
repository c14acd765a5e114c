package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/xtalopt/engine/internal/enginerr"
)

// VolumeMode selects how the generator constrains cell volume.
type VolumeMode string

const (
	VolumeFixed VolumeMode = "fixed"
	VolumeRange VolumeMode = "range"
)

// FailureAction selects what the scheduler does once a candidate exhausts
// its retry budget.
type FailureAction string

const (
	FailureReplace     FailureAction = "replace"
	FailureKillCandidate FailureAction = "kill_candidate"
	FailureKillSession FailureAction = "kill_session"
)

// Bounds is a [min,max] interval for one lattice scalar. Min==Max pins the
// parameter to a fixed value.
type Bounds struct {
	Min float64 `yaml:"min" validate:"required"`
	Max float64 `yaml:"max" validate:"gtefield=Min"`
}

// SessionConfig is the immutable record governing one search session. It
// is authored by the operator as session.yaml and validated before a
// session may start.
type SessionConfig struct {
	// Lattice bounds.
	A     Bounds `yaml:"a" validate:"required"`
	B     Bounds `yaml:"b" validate:"required"`
	C     Bounds `yaml:"c" validate:"required"`
	Alpha Bounds `yaml:"alpha" validate:"required"`
	Beta  Bounds `yaml:"beta" validate:"required"`
	Gamma Bounds `yaml:"gamma" validate:"required"`

	VolumeMode  VolumeMode `yaml:"volume_mode" validate:"required,oneof=fixed range"`
	VolumeFixed float64    `yaml:"volume_fixed" validate:"required_if=VolumeMode fixed"`
	VolumeMin   float64    `yaml:"volume_min" validate:"required_if=VolumeMode range"`
	VolumeMax   float64    `yaml:"volume_max" validate:"required_if=VolumeMode range,gtefield=VolumeMin"`

	UseMinInteratomicDistance bool    `yaml:"use_min_interatomic_distance"`
	MinInteratomicDistance    float64 `yaml:"min_interatomic_distance" validate:"required_if=UseMinInteratomicDistance true"`

	// Composition: atomic number -> count, fixed for the session.
	Composition map[int]int `yaml:"composition" validate:"required,min=1"`

	// PluginData seeds the selected optimizer plugin's data store
	// (get_data/set_data) before the session starts, e.g. VASP's
	// "POTCAR info". The engine additionally sets "Composition" itself
	// from the composition above, so operators never need to supply it.
	PluginData map[string]string `yaml:"plugin_data,omitempty"`

	// Operator probabilities, must sum to 100.
	PCross float64 `yaml:"p_cross" validate:"gte=0,lte=100"`
	PStrip float64 `yaml:"p_strip" validate:"gte=0,lte=100"`
	PPerm  float64 `yaml:"p_perm" validate:"gte=0,lte=100"`

	PopSize             int `yaml:"pop_size" validate:"gt=0"`
	NumInitial          int `yaml:"num_initial" validate:"gt=0"`
	CrossMinContribution int `yaml:"cross_min_contribution" validate:"gte=1,lte=49"`

	StrippleAmplitudeMin    float64 `yaml:"stripple_amplitude_min" validate:"gte=0"`
	StrippleAmplitudeMax    float64 `yaml:"stripple_amplitude_max" validate:"gtefield=StrippleAmplitudeMin"`
	StripplePeriod1         int     `yaml:"stripple_period1" validate:"gt=0"`
	StripplePeriod2         int     `yaml:"stripple_period2" validate:"gt=0"`
	StrippleStrainStdevMin  float64 `yaml:"stripple_strain_stdev_min" validate:"gte=0"`
	StrippleStrainStdevMax  float64 `yaml:"stripple_strain_stdev_max" validate:"gtefield=StrippleStrainStdevMin"`

	PermustrainExchanges       int     `yaml:"permustrain_exchanges" validate:"gt=0"`
	PermustrainStrainStdevMax  float64 `yaml:"permustrain_strain_stdev_max" validate:"gte=0"`

	TolEnthalpy float64 `yaml:"tol_enthalpy" validate:"gt=0"`
	TolVolume   float64 `yaml:"tol_volume" validate:"gt=0"`
	TolSpg      float64 `yaml:"tol_spg" validate:"gt=0"`

	FailureAction     FailureAction `yaml:"failure_action" validate:"required,oneof=replace kill_candidate kill_session"`
	MaxFailuresBeforeAction int     `yaml:"max_failures_before_action" validate:"gt=0"`

	TargetInFlight int `yaml:"target_in_flight" validate:"gt=0"`

	OptimizerPlugin string `yaml:"optimizer_plugin" validate:"required,oneof=VASP GULP PWscf CASTEP"`

	// OptSteps is the length of the optimizer plugin's step list: how many
	// times a candidate must be resubmitted against its own relaxed output
	// before it's considered fully optimized. Defaults to 1 if unset;
	// ignored by backends (GULP) whose job model has no notion of steps.
	OptSteps int `yaml:"opt_steps" validate:"gte=0"`

	RemoteHost     string `yaml:"remote_host"`
	RemoteUser     string `yaml:"remote_user"`
	RemotePort     int    `yaml:"remote_port" validate:"omitempty,gt=0,lte=65535"`
	RemotePath     string `yaml:"remote_path"`
	NumConnections int    `yaml:"num_connections" validate:"gte=0"`

	SessionRoot string `yaml:"session_root" validate:"required"`
}

var validate = validator.New()

// LoadSession reads and validates a session.yaml file.
func LoadSession(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ConfigInvalid, err, "read session config").WithOperation("LoadSession")
	}

	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, enginerr.Wrap(enginerr.ConfigInvalid, err, "parse session config").WithOperation("LoadSession")
	}

	if cfg.OptSteps == 0 {
		cfg.OptSteps = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct-tag constraints plus the one cross-field
// constraint (operator probabilities summing to 100) that validator tags
// alone cannot express. Bounds ordering (max >= min) is checked by the
// Bounds struct tags; pinned (min == max) bounds get no further check.
func (c *SessionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		msgs := make([]string, 0)
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return enginerr.Newf(enginerr.ConfigInvalid, "session config: %s", strings.Join(msgs, "; ")).WithOperation("Validate")
	}

	sum := c.PCross + c.PStrip + c.PPerm
	if sum < 99.999 || sum > 100.001 {
		return enginerr.Newf(enginerr.ConfigInvalid, "p_cross+p_strip+p_perm must sum to 100, got %v", sum).WithOperation("Validate")
	}

	return nil
}
