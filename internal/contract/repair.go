package contract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/engine"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

type State string

const (
	StatePending             State = "Pending"
	StateValidated           State = "Validated"
	StateRepairRequested     State = "RepairRequested"
	StateRepaired            State = "Repaired"
	StateAcceptedWithWarning State = "AcceptedWithWarning"
)

// WarningSchemaNonConformant flags output accepted despite failing the
// contract after its one repair.
const WarningSchemaNonConformant = "schema-non-conformant"

const repairInstruction = "Reformat only. Do not add new reasoning."

var transitions = map[State][]State{
	StatePending:         {StateValidated, StateRepairRequested},
	StateRepairRequested: {StateRepaired, StateAcceptedWithWarning},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Request struct {
	Model       string
	Constraints prompt.Constraints
	// Context is the minimized case context the original answer was based on.
	Context string
}

type Outcome struct {
	State    State
	Text     string
	Original string
	// Initial is the validation of the first answer; Final of the returned text.
	Initial    types.ValidationResult
	Final      types.ValidationResult
	Warnings   []string
	Trail      []State
	RepairErr  error
	RepairUsed bool
}

// Repairer validates a model answer and issues at most one reformatting
// request when it does not conform.
type Repairer struct {
	Engine  engine.Engine
	Timeout time.Duration
}

func (r *Repairer) Run(ctx context.Context, output string, req Request) Outcome {
	o := Outcome{State: StatePending, Text: output, Original: output, Trail: []State{StatePending}}
	o.Initial = Validate(output, req.Constraints)
	if o.Initial.Valid {
		o.advance(StateValidated)
		o.Final = o.Initial
		return o
	}

	o.advance(StateRepairRequested)
	o.RepairUsed = true
	repaired, err := engine.Call(ctx, r.Engine, r.Timeout, req.Model, RepairMessages(output, req), engine.GenerateOptions{})
	if err != nil {
		o.RepairErr = fmt.Errorf("repair call: %w", err)
	} else if strings.TrimSpace(repaired) != "" {
		o.Text = strings.TrimSpace(repaired)
	}

	o.Final = Validate(o.Text, req.Constraints)
	if o.Final.Valid {
		o.advance(StateRepaired)
		return o
	}
	o.advance(StateAcceptedWithWarning)
	o.Warnings = append(o.Warnings, WarningSchemaNonConformant)
	return o
}

func (o *Outcome) advance(to State) {
	if !canTransition(o.State, to) {
		panic(fmt.Sprintf("contract: illegal transition %s -> %s", o.State, to))
	}
	o.State = to
	o.Trail = append(o.Trail, to)
}

// RepairMessages builds the single repair request.
func RepairMessages(output string, req Request) []engine.Message {
	system := repairInstruction + "\n" + FormatRules(req.Constraints)
	var user strings.Builder
	user.WriteString("Original answer:\n")
	user.WriteString(output)
	if strings.TrimSpace(req.Context) != "" {
		user.WriteString("\n\nCase context:\n")
		user.WriteString(req.Context)
	}
	return []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}
