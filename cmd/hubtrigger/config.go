package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/casualjim/hubtrigger/pkg/natsx"
	"github.com/casualjim/hubtrigger/trigger"
	"gopkg.in/yaml.v3"
)

// Config is the trigger file read at startup.
type Config struct {
	// TaskQueue and Workflow override the Temporal defaults when set.
	TaskQueue string `yaml:"task_queue,omitempty"`
	Workflow  string `yaml:"workflow,omitempty"`
	// QueueCapacity bounds the causes waiting to be scheduled.
	QueueCapacity int                `yaml:"queue_capacity,omitempty"`
	Triggers      []*trigger.Trigger `yaml:"triggers"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no triggers configured")
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Triggers) == 0 {
		return nil, errors.New("no triggers configured")
	}
	if cfg.QueueCapacity < 0 {
		return nil, fmt.Errorf("queue_capacity must not be negative, got %d", cfg.QueueCapacity)
	}

	seen := make(map[string]struct{}, len(cfg.Triggers))
	for i, t := range cfg.Triggers {
		if t == nil {
			return nil, fmt.Errorf("trigger %d: empty definition", i)
		}
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("trigger %d: name cannot be empty", i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("trigger %d: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = struct{}{}

		if strings.TrimSpace(t.HubAddress) == "" {
			t.HubAddress = natsx.URL("")
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("trigger %s: %w", t.Name, err)
		}
	}
	return &cfg, nil
}
