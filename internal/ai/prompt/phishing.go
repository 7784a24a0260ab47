// Package prompt builds language-model prompts and decodes their replies.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// ErrMalformedReply is returned when a model reply is not a usable verdict.
var ErrMalformedReply = errors.New("malformed model reply")

const phishingSystemPrompt = "You are a cybersecurity expert specializing in phishing detection."

// PhishingSystemPrompt returns the system message for phishing classification.
func PhishingSystemPrompt() string {
	return phishingSystemPrompt
}

// PhishingUserPrompt embeds the content type and raw text into the scoring instructions.
func PhishingUserPrompt(req models.PhishingRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s content for potential phishing indicators.\n", req.Type)
	b.WriteString("Score from 0-100 where 0 is definitely safe and 100 is definitely phishing.\n")
	b.WriteString("Identify specific phishing factors present.\n\n")
	fmt.Fprintf(&b, "%s CONTENT: %s\n\n", strings.ToUpper(string(req.Type)), req.Content)
	b.WriteString("Return a JSON object with:\n")
	b.WriteString("{\n")
	b.WriteString(`  "score": number between 0-100,` + "\n")
	b.WriteString(`  "status": "safe" if score < 30, "suspicious" if score between 30-70, "fake" if score > 70,` + "\n")
	b.WriteString(`  "factors": [array of strings describing phishing indicators found]` + "\n")
	b.WriteString("}")
	return b.String()
}

type verdictReply struct {
	Score   *float64 `json:"score"`
	Status  string   `json:"status"`
	Factors []string `json:"factors"`
}

// ParseVerdict decodes a model reply into a Verdict. The model's status is kept
// as given; only the score is clamped.
func ParseVerdict(raw string) (models.Verdict, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return models.Verdict{}, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	var reply verdictReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if reply.Score == nil {
		return models.Verdict{}, fmt.Errorf("%w: missing score", ErrMalformedReply)
	}
	status, err := models.ParseResultStatus(strings.ToLower(strings.TrimSpace(reply.Status)))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if !models.ValidForFlow(models.DetectionPhishing, status) {
		return models.Verdict{}, fmt.Errorf("%w: status %q not valid for phishing", ErrMalformedReply, status)
	}

	factors := reply.Factors
	if factors == nil {
		factors = []string{}
	}

	return models.Verdict{
		Score:   models.ClampScoreFloat(*reply.Score),
		Status:  status,
		Factors: factors,
	}, nil
}

// stripCodeFence removes a surrounding ```json fence some models add even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
