// Command flowrun executes a workflow definition locally using the in-memory
// engine and the built-in node catalog. It is the quickest way to exercise a
// workflow JSON document end to end without Temporal, Redis, or MongoDB.
//
// # Usage
//
//	flowrun -workflow pipeline.json [-config flowrun.yaml] [-debug]
//
// The workflow file holds the JSON graph document. The optional config file
// sets execution identity and credit parameters:
//
//	organization: org-local
//	user: user-local
//	credits:
//	  available: 1000
//	  subscription: active
//	  overageLimit: 0
//	secrets:
//	  api-key: s3cr3t
//	maxConcurrent: 8
//
// The final execution record is printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"goa.design/clue/log"
	"gopkg.in/yaml.v3"

	blobmem "goa.design/flowrun/runtime/flow/blob/inmem"
	"goa.design/flowrun/runtime/flow/catalog/builtin"
	creditsmem "goa.design/flowrun/runtime/flow/credits/inmem"
	"goa.design/flowrun/runtime/flow/driver"
	enginemem "goa.design/flowrun/runtime/flow/engine/inmem"
	"goa.design/flowrun/runtime/flow/run"
	runmem "goa.design/flowrun/runtime/flow/run/inmem"
	secretsstatic "goa.design/flowrun/runtime/flow/secrets/static"
	"goa.design/flowrun/runtime/flow/telemetry"
	"goa.design/flowrun/runtime/flow/workflow"
)

type config struct {
	Organization string `yaml:"organization"`
	User         string `yaml:"user"`
	Session      string `yaml:"session"`
	Credits      struct {
		Available    int    `yaml:"available"`
		Subscription string `yaml:"subscription"`
		OverageLimit int    `yaml:"overageLimit"`
	} `yaml:"credits"`
	Secrets       map[string]string `yaml:"secrets"`
	MaxConcurrent int               `yaml:"maxConcurrent"`
}

func defaultConfig() config {
	var cfg config
	cfg.Organization = "org-local"
	cfg.User = "user-local"
	cfg.Credits.Available = 1000
	cfg.Credits.Subscription = "active"
	cfg.MaxConcurrent = 8
	return cfg
}

func main() {
	var (
		workflowF = flag.String("workflow", "", "Path to the workflow JSON document (required)")
		configF   = flag.String("config", "", "Path to the YAML configuration file")
		dbgF      = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if *workflowF == "" {
		fmt.Fprintln(os.Stderr, "flowrun: -workflow is required")
		flag.Usage()
		os.Exit(1)
	}

	rec, err := execute(ctx, *workflowF, *configF)
	if err != nil {
		log.Errorf(ctx, err, "execution failed")
		os.Exit(1)
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Errorf(ctx, err, "encode record")
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func execute(ctx context.Context, workflowPath, configPath string) (*run.Record, error) {
	cfg := defaultConfig()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	raw, err := os.ReadFile(workflowPath)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	w, err := workflow.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}

	eng := enginemem.New(enginemem.Options{MaxConcurrent: cfg.MaxConcurrent})
	d := driver.New(driver.Options{
		Catalog: builtin.Registry(),
		Store:   runmem.New(),
		Credits: creditsmem.New(),
		Blobs:   blobmem.New(),
		Secrets: secretsstatic.New(cfg.Secrets, nil),
		Logger:  telemetry.NewClueLogger(),
	})
	if err := d.Register(ctx, eng, "local"); err != nil {
		return nil, fmt.Errorf("register workflow: %w", err)
	}

	executionID := uuid.NewString()
	log.Print(ctx, log.KV{K: "msg", V: "starting execution"},
		log.KV{K: "workflow", V: w.ID}, log.KV{K: "execution", V: executionID})

	handle, err := driver.Start(ctx, eng, &driver.Request{
		ExecutionID:        executionID,
		Workflow:           w,
		UserID:             cfg.User,
		OrganizationID:     cfg.Organization,
		SessionID:          cfg.Session,
		AvailableCredits:   cfg.Credits.Available,
		SubscriptionStatus: cfg.Credits.Subscription,
		OverageLimit:       cfg.Credits.OverageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("start execution: %w", err)
	}
	out, err := handle.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("await execution: %w", err)
	}
	var rec run.Record
	if err := json.Unmarshal(out, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
