package scenario

import (
	"strings"
	"time"

	"apiprobe/pkg/logging"
)

// LastResponseAttachment is the name of the attachment added for failed scenarios.
const LastResponseAttachment = "Last Response Body"

// Hooks run before and after every scenario.
type Hooks struct {
	Sink Sink
}

func (h Hooks) publish(e Event) {
	if h.Sink == nil {
		return
	}
	e.Time = time.Now()
	h.Sink.Publish(e)
}

// Before logs the scenario name and tags and announces the scenario.
func (h Hooks) Before(sc *Context) {
	info := sc.Info()
	if len(info.Tags) > 0 {
		logging.Info("scenario", "Starting scenario: %s [%s]", info.Name, strings.Join(info.Tags, " "))
	} else {
		logging.Info("scenario", "Starting scenario: %s", info.Name)
	}
	h.publish(Event{Kind: ScenarioStarted, Scenario: info})
}

// StepDone reports the outcome of one step.
func (h Hooks) StepDone(sc *Context, step string, status Status, err error, d time.Duration) {
	if err != nil {
		logging.Debug("scenario", "Step %q %s: %v", step, status, err)
	}
	h.publish(Event{
		Kind:     StepFinished,
		Scenario: sc.Info(),
		Step:     step,
		Status:   status,
		Err:      err,
		Duration: d,
	})
}

// After attaches the last response body when the scenario failed, logs the
// end status, announces the result and cleans the context up. It returns
// the attachments collected during the scenario.
func (h Hooks) After(sc *Context, status Status, err error) []Attachment {
	info := sc.Info()

	if status == StatusFailed {
		if resp := sc.LastResponse(); resp != nil {
			sc.Attach(Attachment{
				Name:      LastResponseAttachment,
				MediaType: "text/plain",
				Body:      []byte(resp.Body()),
			})
		}
	}

	switch status {
	case StatusFailed:
		logging.Warn("scenario", "Scenario %s: %s (%v)", status, info.Name, err)
	default:
		logging.Info("scenario", "Scenario %s: %s", status, info.Name)
	}

	attachments := sc.Attachments()
	h.publish(Event{
		Kind:        ScenarioFinished,
		Scenario:    info,
		Status:      status,
		Err:         err,
		Duration:    sc.Elapsed(),
		Attachments: attachments,
	})

	sc.Cleanup()
	return attachments
}
