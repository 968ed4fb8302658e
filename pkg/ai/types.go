package ai

import "context"

// Completer answers a single free-text prompt. It backs the quality oracle.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AppRequest describes the single-page app a student agent must build.
type AppRequest struct {
	Task        string
	Round       int
	Brief       string
	Checks      []string
	Attachments []string
}

// GeneratedApp is the model output for an AppRequest.
type GeneratedApp struct {
	HTML  string `json:"html"`
	Notes string `json:"notes,omitempty"`
}

// Generator produces application source from a brief.
type Generator interface {
	GenerateApp(ctx context.Context, req AppRequest) (GeneratedApp, error)
}
