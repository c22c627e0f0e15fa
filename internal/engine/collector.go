package engine

import (
	"sync"
	"time"

	"apiprobe/internal/scenario"
)

// collector assembles scenario results from events.
type collector struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*ScenarioResult
}

func newCollector() *collector {
	return &collector{byID: make(map[string]*ScenarioResult)}
}

func (c *collector) Publish(e scenario.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.byID[e.Scenario.ID]
	if r == nil {
		r = &ScenarioResult{
			ID:        e.Scenario.ID,
			Name:      e.Scenario.Name,
			URI:       e.Scenario.URI,
			Tags:      e.Scenario.Tags,
			StartTime: e.Time,
			Steps:     []StepResult{},
		}
		c.byID[e.Scenario.ID] = r
		c.order = append(c.order, e.Scenario.ID)
	}

	switch e.Kind {
	case scenario.StepFinished:
		r.Steps = append(r.Steps, StepResult{
			Text:     e.Step,
			Status:   e.Status,
			Duration: e.Duration,
			Error:    errorString(e.Err),
		})
	case scenario.ScenarioFinished:
		r.Status = e.Status
		r.Duration = e.Duration
		r.Error = errorString(e.Err)
		for _, a := range e.Attachments {
			r.Attachments = append(r.Attachments, AttachmentResult{
				Name:      a.Name,
				MediaType: a.MediaType,
				Body:      string(a.Body),
			})
		}
	}
}

// result builds the suite result from everything collected so far.
func (c *collector) result(runID string, start, end time.Time) *SuiteResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := &SuiteResult{
		RunID:     runID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Scenarios: make([]ScenarioResult, 0, len(c.order)),
	}
	for _, id := range c.order {
		r := *c.byID[id]
		res.Scenarios = append(res.Scenarios, r)
		switch r.Status {
		case scenario.StatusPassed:
			res.Passed++
		case scenario.StatusSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}
	res.Total = len(res.Scenarios)
	return res
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
