package runtime

import "github.com/aretw0/mobility/pkg/domain"

// ResolvePause turns the template's pause into absolute epoch milliseconds.
func ResolvePause(tmpl domain.StepTemplate, proc *domain.Proc, now int64) int64 {
	return resolve(tmpl.Pause, tmpl.PauseAnchor, proc, now, now)
}

// ResolveTimeout turns the template's timeout into absolute epoch
// milliseconds. A '+' timeout is measured from the resolved pause, or from
// now when there is no pause.
func ResolveTimeout(tmpl domain.StepTemplate, proc *domain.Proc, now, pause int64) int64 {
	base := now
	if pause >= 0 {
		base = pause
	}
	return resolve(tmpl.Timeout, tmpl.TimeoutAnchor, proc, now, base)
}

func resolve(offset int64, anchor domain.Anchor, proc *domain.Proc, now, relative int64) int64 {
	if offset < 0 {
		return -1
	}
	switch anchor {
	case domain.AnchorProcStart:
		return proc.StartTime + offset
	case domain.AnchorNow:
		return relative + offset
	case domain.AnchorPrevious:
		if proc.PrevStepStart >= 0 {
			return proc.PrevStepStart + offset
		}
		return now + offset
	default:
		return offset
	}
}

// ResolveOptions builds the concrete options of the step a proc creates
// for tmpl. The ticket ID and the cursor fields are left for the caller,
// which knows the step ID and the entry index.
func ResolveOptions(tmpl domain.StepTemplate, proc *domain.Proc, now int64) domain.StepOptions {
	target := tmpl.Actor
	if target == "" {
		target = proc.Agent
	}
	pause := ResolvePause(tmpl, proc, now)
	return domain.StepOptions{
		Owner:  proc.ID,
		Source: proc.Agent,
		Target: target,
		Ticket: domain.Ticket{
			MobileAgent:  tmpl.MobileAgent,
			Origin:       tmpl.Origin,
			Destination:  tmpl.Destination,
			ForceRestart: tmpl.ForceRestart,
		},
		PauseTime:   pause,
		TimeoutTime: ResolveTimeout(tmpl, proc, now, pause),
	}
}
