package bayes

import "strings"

const (
	// PrimeSuffix marks the next-turn copy of a variable. Reduction keeps
	// the most-primed copy and strips the marker.
	PrimeSuffix = "'"

	// PredictionSuffix marks a predicted observation variable. Prediction
	// variables participate in planning lookahead but never survive into
	// committed state.
	PredictionSuffix = "^p"

	rewardPrefix = "R("
	rewardSuffix = ")"
)

// Primed returns the variable name with one prime appended.
func Primed(name string) string {
	return name + PrimeSuffix
}

// PrimeCount returns the number of trailing primes on the variable name.
func PrimeCount(name string) int {
	count := 0
	for strings.HasSuffix(name[:len(name)-count], PrimeSuffix) {
		count++
	}
	return count
}

// StripPrimes returns the variable name with all trailing primes removed.
func StripPrimes(name string) string {
	return strings.TrimRight(name, PrimeSuffix)
}

// Predicted returns the variable name with the prediction marker appended.
func Predicted(name string) string {
	return name + PredictionSuffix
}

// IsPrediction reports whether the variable name carries the prediction
// marker.
func IsPrediction(name string) bool {
	return strings.Contains(name, PredictionSuffix)
}

// StripPrediction removes the prediction marker from the variable name.
func StripPrediction(name string) string {
	return strings.ReplaceAll(name, PredictionSuffix, "")
}

// RewardVariable builds the evidence variable name that carries observed
// reward for a past action assignment.
func RewardVariable(action Assignment) string {
	return rewardPrefix + action.String() + rewardSuffix
}

// IsReward reports whether the variable name is reward-shaped.
func IsReward(name string) bool {
	return strings.HasPrefix(name, rewardPrefix) && strings.HasSuffix(name, rewardSuffix)
}

// RewardTarget extracts the action assignment encoded in a reward variable
// name. Returns false for names that are not reward-shaped or whose payload
// does not parse back into a non-empty assignment.
func RewardTarget(name string) (Assignment, bool) {
	if !IsReward(name) {
		return NewAssignment(), false
	}
	payload := name[len(rewardPrefix) : len(name)-len(rewardSuffix)]
	action, err := ParseAssignment(payload)
	if err != nil || action.IsEmpty() {
		return NewAssignment(), false
	}
	return action, true
}
