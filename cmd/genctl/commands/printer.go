package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"gopkg.in/yaml.v3"
)

const timeLayout = "2006-01-02 15:04:05"

// taskView is the printable form of a task. Raw JSON payloads are decoded so
// YAML renders them as structures instead of byte strings.
type taskView struct {
	ID         string    `json:"id" yaml:"id"`
	TaskType   string    `json:"taskType" yaml:"taskType"`
	Status     string    `json:"status" yaml:"status"`
	Input      any       `json:"input" yaml:"input"`
	Output     any       `json:"output,omitempty" yaml:"output,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	WebhookURL string    `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type predictionView struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Status  string `json:"status" yaml:"status"`
	Output  any    `json:"output,omitempty" yaml:"output,omitempty"`
	Error   any    `json:"error,omitempty" yaml:"error,omitempty"`
}

func newTaskView(t *domain.Task) taskView {
	return taskView{
		ID:         t.ID.String(),
		TaskType:   string(t.TaskType),
		Status:     string(t.Status),
		Input:      decodeRaw(t.Input),
		Output:     decodeRaw(t.Output),
		Error:      t.Error,
		WebhookURL: t.WebhookURL,
		CreatedAt:  time.UnixMilli(t.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(t.UpdatedAt).UTC(),
	}
}

func newPredictionView(p *replicate.Prediction) predictionView {
	return predictionView{
		ID:      p.ID,
		Version: p.Version,
		Status:  p.Status,
		Output:  decodeRaw(p.Output),
		Error:   decodeRaw(p.Error),
	}
}

// decodeRaw returns nil for an empty payload and the raw text when it is
// not valid JSON.
func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func printTasks(w io.Writer, format string, tasks []*domain.Task) error {
	if format != FormatTable {
		views := make([]taskView, len(tasks))
		for i, t := range tasks {
			views[i] = newTaskView(t)
		}
		return encode(w, format, views)
	}

	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.TaskType, t.Status, time.UnixMilli(t.CreatedAt).UTC().Format(timeLayout))
	}
	return tw.Flush()
}

func printTask(w io.Writer, format string, t *domain.Task) error {
	if format != FormatTable {
		return encode(w, format, newTaskView(t))
	}

	fmt.Fprintf(w, "ID:       %s\n", t.ID)
	fmt.Fprintf(w, "Type:     %s\n", t.TaskType)
	fmt.Fprintf(w, "Status:   %s\n", t.Status)
	fmt.Fprintf(w, "Created:  %s\n", time.UnixMilli(t.CreatedAt).UTC().Format(timeLayout))
	fmt.Fprintf(w, "Updated:  %s\n", time.UnixMilli(t.UpdatedAt).UTC().Format(timeLayout))
	if t.WebhookURL != "" {
		fmt.Fprintf(w, "Webhook:  %s\n", t.WebhookURL)
	}
	fmt.Fprintf(w, "Input:    %s\n", t.Input)
	if len(t.Output) > 0 {
		fmt.Fprintf(w, "Output:   %s\n", t.Output)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", t.Error)
	}
	return nil
}

func printPrediction(w io.Writer, format string, p *replicate.Prediction) error {
	if format != FormatTable {
		return encode(w, format, newPredictionView(p))
	}

	fmt.Fprintf(w, "ID:       %s\n", p.ID)
	if p.Version != "" {
		fmt.Fprintf(w, "Version:  %s\n", p.Version)
	}
	fmt.Fprintf(w, "Status:   %s\n", p.Status)
	if len(p.Output) > 0 {
		fmt.Fprintf(w, "Output:   %s\n", p.Output)
	}
	if len(p.Error) > 0 && string(p.Error) != "null" {
		fmt.Fprintf(w, "Error:    %s\n", p.Error)
	}
	return nil
}
