package scorer

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// RandSource is the randomness used by Simulated.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// globalRand uses the math/rand/v2 top-level functions, which are safe for
// concurrent use.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

const (
	voiceAuthenticProbability = 0.7
	deepfakeThreshold         = 0.7
)

var (
	voiceAuthenticFactors = []string{
		"Natural speech rhythm and micro-variations",
		"Consistent breath patterns throughout audio",
		"No algorithmic artifacts in voice frequency",
		"Natural emotional inflections detected",
	}
	voiceFakeFactors = []string{
		"Unnatural speech rhythm detected",
		"Inconsistent breath patterns",
		"Algorithmic artifacts in voice frequency",
		"Missing natural emotional inflections",
	}
	videoFakeFactors = []string{
		"Inconsistent eye blinking patterns",
		"Unnatural facial movements at frame boundaries",
		"Audio-visual synchronization issues detected",
		"Digital artifacts around facial features",
	}
	videoRealFactors = []string{
		"Consistent eye blinking patterns",
		"Natural facial movements throughout video",
		"Strong audio-visual synchronization",
		"No digital artifacts detected around facial features",
	}
)

// Simulated draws demonstration verdicts at random. File contents are ignored.
type Simulated struct {
	rnd RandSource
}

// NewSimulated returns a Simulated scorer. A nil source uses math/rand/v2.
func NewSimulated(rnd RandSource) *Simulated {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Simulated{rnd: rnd}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Score(_ context.Context, sample Sample) (models.Verdict, error) {
	switch sample.Flow {
	case models.DetectionVoice:
		if s.rnd.Float64() < voiceAuthenticProbability {
			return verdict(70+s.rnd.IntN(30), models.StatusReal, voiceAuthenticFactors), nil
		}
		return verdict(s.rnd.IntN(40), models.StatusFake, voiceFakeFactors), nil
	case models.DetectionDeepfake:
		if s.rnd.Float64() > deepfakeThreshold {
			return verdict(s.rnd.IntN(40), models.StatusFake, videoFakeFactors), nil
		}
		return verdict(60+s.rnd.IntN(40), models.StatusReal, videoRealFactors), nil
	default:
		return models.Verdict{}, fmt.Errorf("%w: %s", ErrUnsupportedFlow, sample.Flow)
	}
}

func verdict(score int, status models.ResultStatus, factors []string) models.Verdict {
	return models.Verdict{
		Score:   score,
		Status:  status,
		Factors: append([]string(nil), factors...),
	}
}
