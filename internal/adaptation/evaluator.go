package adaptation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ai-cycle-planner/internal/planner"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
)

// Decision is the evaluator's verdict for one event.
type Decision struct {
	ShouldAdapt  bool             `json:"should_adapt"`
	Trigger      string           `json:"trigger,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Priority     planner.Priority `json:"priority,omitempty"`
	Realign      bool             `json:"-"`
}

// Evaluator matches events against built-in rules and a plan's own triggers.
// Compiled conditions are cached.
type Evaluator struct {
	rules []Rule

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEvaluator creates an Evaluator. Nil rules use DefaultRules.
func NewEvaluator(rules []Rule) *Evaluator {
	if rules == nil {
		rules = DefaultRules
	}
	return &Evaluator{rules: rules, programs: make(map[string]*vm.Program)}
}

// Evaluate returns the first matching built-in rule, else the highest
// priority matching plan trigger. Conditions that fail to compile or run are
// logged and treated as non-matching.
func (e *Evaluator) Evaluate(ev Event, plan *planner.WeeklyPlan) Decision {
	env := ev.env()

	for _, r := range e.rules {
		if e.matches(r.Condition, env, r.Name) {
			return Decision{
				ShouldAdapt:  true,
				Trigger:      r.Name,
				Reason:       r.Reason,
				Instructions: r.Instructions,
				Priority:     r.Priority,
				Realign:      r.Realign,
			}
		}
	}

	if plan == nil {
		return Decision{}
	}

	triggers := make([]planner.AdaptationTrigger, len(plan.AdaptationTriggers))
	copy(triggers, plan.AdaptationTriggers)
	sort.SliceStable(triggers, func(i, j int) bool {
		return priorityRank(triggers[i].Priority) > priorityRank(triggers[j].Priority)
	})
	for _, t := range triggers {
		if e.matches(t.Condition, env, "plan_trigger") {
			return Decision{
				ShouldAdapt:  true,
				Trigger:      "plan_trigger",
				Reason:       fmt.Sprintf("%s %s", strings.ReplaceAll(ev.Table, "_", " "), eventVerb(env)),
				Instructions: t.Instructions,
				Priority:     t.Priority,
			}
		}
	}
	return Decision{}
}

func (e *Evaluator) matches(condition string, env map[string]any, name string) bool {
	program, err := e.compile(condition)
	if err != nil {
		log.WithFields(log.Fields{"rule": name, "condition": condition}).Warnf("Invalid adaptation condition: %v", err)
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		log.WithFields(log.Fields{"rule": name, "condition": condition}).Debugf("Adaptation condition failed: %v", err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (e *Evaluator) compile(condition string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[condition]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(condition, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[condition] = program
	e.mu.Unlock()
	return program, nil
}

func priorityRank(p planner.Priority) int {
	switch p {
	case planner.PriorityHigh:
		return 3
	case planner.PriorityMedium:
		return 2
	case planner.PriorityLow:
		return 1
	}
	return 0
}

func eventVerb(env map[string]any) string {
	switch env["event_type"] {
	case "INSERT":
		return "added"
	case "UPDATE":
		return "changed"
	case "DELETE":
		return "removed"
	}
	return "changed"
}
