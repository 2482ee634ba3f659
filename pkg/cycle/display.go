package cycle

import (
	"fmt"
	"time"

	"github.com/itohio/goanneal/pkg/sensor"
)

// NopDisplay discards every update.
type NopDisplay struct{}

var _ Display = NopDisplay{}

func (NopDisplay) Mode(Mode)                     {}
func (NopDisplay) State(fmt.Stringer)            {}
func (NopDisplay) Refresh(Snapshot)              {}
func (NopDisplay) Timer(time.Duration)           {}
func (NopDisplay) Power(sensor.Reading)          {}
func (NopDisplay) Temps(sensor.Reading)          {}
func (NopDisplay) Recommendation(Recommendation) {}
func (NopDisplay) Status(string)                 {}
