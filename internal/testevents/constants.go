package testevents

// Event variants. Everything but VariantClean carries a deliberate defect.
const (
	VariantClean         = "clean"
	VariantMissingFields = "missing_fields"
	VariantTypeErrors    = "type_errors"
	VariantSpeeding      = "speeding"
)

// DefectVariants lists the defective variants picked for bad events.
var DefectVariants = []string{VariantMissingFields, VariantTypeErrors, VariantSpeeding}

// Generation ranges.
const (
	minDurationSeconds = 300
	maxDurationSeconds = 3600
	maxStartOffsetMin  = 5
	minRiderAge        = 16
	maxRiderAge        = 80
	speedingSeconds    = 30
	tripSuffixLen      = 6
)

var (
	startStations = []float64{101, 102, 99999}
	endStations   = []float64{201, 202, 88888}
	bikeTypes     = []string{"electric", "classic"}
	memberTypes   = []string{"member", "casual"}
)
