package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
)

// runLogNode resolves the message and appends it to the execution log
func (e *Engine) runLogNode(ec *ExecutionContext, nodeID string, config *models.LogConfig) (interface{}, error) {
	message, warnings := template.ResolveString(config.Message, ec.TemplateContext())
	logWarnings(ec, nodeID, warnings)

	level := config.LogLevel
	if level == "" {
		level = "info"
	}
	ec.Log(level, nodeID, message, nil)

	return map[string]interface{}{
		"message": message,
		"level":   level,
	}, nil
}

// cronParser validates cron-mode delay schedules. Standard five-field
// expressions plus the @every descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// runDelayNode pauses the execution. Duration mode sleeps in-process and
// honours cancellation; cron mode validates the schedule, records it for an
// external scheduler and returns immediately.
func (e *Engine) runDelayNode(ctx context.Context, ec *ExecutionContext, nodeID string, config *models.DelayConfig) (interface{}, error) {
	if config.Mode == models.DelayModeCron {
		schedule, err := cronParser.Parse(config.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", config.CronExpression, err)
		}
		next := schedule.Next(time.Now())
		ec.Log("info", nodeID, fmt.Sprintf("cron schedule %q recorded, next run %s", config.CronExpression, next.Format(time.RFC3339)), nil)
		return map[string]interface{}{
			"mode":            models.DelayModeCron,
			"cron_expression": config.CronExpression,
			"next_run":        next.Format(time.RFC3339),
		}, nil
	}

	amount, warnings := template.ResolveString(config.Amount, ec.TemplateContext())
	logWarnings(ec, nodeID, warnings)

	value, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid delay amount %q: %w", amount, err)
	}
	if value < 0 {
		return nil, fmt.Errorf("delay amount must not be negative")
	}

	var unit time.Duration
	switch config.Unit {
	case "milliseconds":
		unit = time.Millisecond
	case "", "seconds":
		unit = time.Second
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	default:
		return nil, fmt.Errorf("unknown delay unit: %q", config.Unit)
	}
	duration := time.Duration(value * float64(unit))

	ec.Log("info", nodeID, fmt.Sprintf("delaying for %s", duration), nil)
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]interface{}{
		"mode":        models.DelayModeDuration,
		"duration_ms": float64(duration.Milliseconds()),
	}, nil
}

// runStopJobNode terminates the flow via the stopFlow control signal
func (e *Engine) runStopJobNode(ec *ExecutionContext, nodeID string, config *models.StopJobConfig) (interface{}, error) {
	if config.StopType == models.StopTypeSuccess {
		ec.Log("info", nodeID, "stopping flow with success", nil)
		return map[string]interface{}{"stop_type": config.StopType}, &stopFlow{success: true}
	}

	message, warnings := template.ResolveString(config.ErrorMessage, ec.TemplateContext())
	logWarnings(ec, nodeID, warnings)
	if message == "" {
		message = fmt.Sprintf("flow stopped with error by node %s", nodeID)
	}
	ec.Log("error", nodeID, message, nil)
	return map[string]interface{}{
		"stop_type": config.StopType,
		"message":   message,
	}, &stopFlow{message: message}
}
