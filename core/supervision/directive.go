package supervision

import "fmt"

type Directive int

const (
	DirectiveResume Directive = iota
	DirectiveRestart
	DirectiveStop
	DirectiveEscalate
)

func (d Directive) String() string {
	switch d {
	case DirectiveResume:
		return "resume"
	case DirectiveRestart:
		return "restart"
	case DirectiveStop:
		return "stop"
	case DirectiveEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("directive(%d)", int(d))
	}
}

// Decider picks the directive for a failure within the strategy's limits.
type Decider func(err error) Directive

func AlwaysRestart(error) Directive { return DirectiveRestart }
func AlwaysResume(error) Directive  { return DirectiveResume }
func AlwaysStop(error) Directive    { return DirectiveStop }
