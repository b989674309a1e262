package domain

import "time"

// WizardSteps lists the brand wizard steps in order. The last entry is the
// terminal step; a session sitting there is finished, not abandoned.
var WizardSteps = []string{
	"business-profile",
	"logo-style",
	"logo-review",
	"mockups",
	"bundle",
	"launch",
}

// TerminalStep is the final wizard step.
func TerminalStep() string { return WizardSteps[len(WizardSteps)-1] }

// StepIndex returns the zero-based position of a step, or -1 when unknown.
func StepIndex(step string) int {
	for i, s := range WizardSteps {
		if s == step {
			return i
		}
	}
	return -1
}

// WizardSession is the slice of a brand session the abandonment detector
// needs: where the user stopped, when, and whether we already reached out.
type WizardSession struct {
	BrandID      string
	UserID       string
	Email        string
	Locale       string
	CurrentStep  string
	LastActivity time.Time
	Abandoned    bool
}
