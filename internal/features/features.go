package features

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when the message and topic vectors have
// different dimensionality.
var ErrShapeMismatch = errors.New("vector shape mismatch")

// RepetitionSignal returns the share of the token sequence taken by its most
// frequent token. An empty sequence yields 0.
//
// Tokens are compared exactly; callers own any normalization.
func RepetitionSignal(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}

	counts := make(map[string]int, len(tokens))
	maxCount := 0
	for _, t := range tokens {
		counts[t]++
		if counts[t] > maxCount {
			maxCount = counts[t]
		}
	}

	return float64(maxCount) / float64(len(tokens))
}

// DriftSignal maps the cosine similarity of message and topic from [-1, 1]
// onto a distance in [0, 1]: 0.5 * (1 - cos).
//
// A zero-magnitude vector carries no direction, so drift is reported as 1.0.
// The similarity is not clamped; floating-point error just outside [-1, 1]
// passes through.
func DriftSignal(message, topic []float64) (float64, error) {
	if len(message) != len(topic) {
		return 0, fmt.Errorf("DriftSignal: %w: message has %d dims, topic has %d",
			ErrShapeMismatch, len(message), len(topic))
	}

	var dot, normA, normB float64
	for i := range message {
		dot += message[i] * topic[i]
		normA += message[i] * message[i]
		normB += topic[i] * topic[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 0.5 * (1.0 - sim), nil
}

// Signals computes both signals for one interaction.
func Signals(tokens []string, message, topic []float64) (y, z float64, err error) {
	z, err = DriftSignal(message, topic)
	if err != nil {
		return 0, 0, err
	}
	return RepetitionSignal(tokens), z, nil
}
