/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the gateway workflow end to end: provision an
// authorizer, create a gateway, register targets from a YAML document,
// fetch a token, list the advertised tools, optionally hand them to an
// agent, and tear everything down on exit.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/toolgate/agentrunner"
	"chainguard.dev/toolgate/agentrunner/prompt"
	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/schema"
	"chainguard.dev/toolgate/gateway/session"
	"chainguard.dev/toolgate/gateway/sessiontrace"
	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type config struct {
	IdentityURL     string `env:"TOOLGATE_IDENTITY_URL,required"`
	ControlPlaneURL string `env:"TOOLGATE_CONTROL_PLANE_URL,required"`
	AdminToken      string `env:"TOOLGATE_ADMIN_TOKEN"`

	GatewayName string `env:"TOOLGATE_GATEWAY_NAME,default=toolgate-demo"`
	TargetsFile string `env:"TOOLGATE_TARGETS_FILE,default=targets.yaml"`

	// When both are set, the listed tools are handed to an agent run.
	Model string `env:"TOOLGATE_MODEL"`
	Task  string `env:"TOOLGATE_TASK"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		clog.FatalContextf(ctx, "workflow failed: %v", err)
	}
}

func run(ctx context.Context, cfg config) (err error) {
	ctx, trace := sessiontrace.Start(ctx, cfg.GatewayName)
	defer func() { trace.Complete(err) }()

	s, err := session.New(session.Config{
		IdentityURL:     cfg.IdentityURL,
		ControlPlaneURL: cfg.ControlPlaneURL,
		AdminToken:      cfg.AdminToken,
	}, session.WithTrace(trace))
	if err != nil {
		return err
	}

	authorizer, err := s.EstablishAuthorizer(ctx, cfg.GatewayName)
	if err != nil {
		return err
	}
	clog.InfoContextf(ctx, "Established authorizer %q (issuer %s)", authorizer.Name, authorizer.Issuer)

	gw, err := s.CreateGateway(ctx, gateway.Config{Name: cfg.GatewayName}, authorizer)
	if err != nil {
		return err
	}
	clog.InfoContextf(ctx, "Created gateway %s at %s", gw.ID, gw.URL)

	// Tear down even when the workflow was interrupted; a partial cleanup
	// is logged rather than failing the run.
	defer func() {
		tctx, tcancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer tcancel()
		if err := s.Teardown(tctx, gw); err != nil {
			var ce *gateway.CleanupError
			if errors.As(err, &ce) {
				clog.WarnContextf(tctx, "Partial teardown of gateway %s: failed targets %v, gateway error %v",
					ce.Gateway, ce.FailedTargets(), ce.GatewayErr)
				return
			}
			clog.WarnContextf(tctx, "Teardown of gateway %s failed: %v", gw.ID, err)
			return
		}
		clog.InfoContextf(tctx, "Tore down gateway %s", gw.ID)
	}()

	doc, err := schema.LoadDocument(cfg.TargetsFile)
	if err != nil {
		return err
	}
	targets, err := gateway.TargetConfigsFromDocument(doc)
	if err != nil {
		return err
	}
	for _, target := range targets {
		tgt, err := s.RegisterTarget(ctx, gw, target)
		if err != nil {
			return err
		}
		clog.InfoContextf(ctx, "Registered target %q as %s", target.Name, tgt.ID)
	}

	tok, err := s.FetchToken(ctx, authorizer)
	if err != nil {
		return err
	}

	var tools []gateway.ToolDescriptor
	for desc, err := range s.ListTools(ctx, gw, tok) {
		if err != nil {
			return err
		}
		clog.InfoContextf(ctx, "Tool %q: %s", desc.Name, desc.Description)
		tools = append(tools, desc)
	}
	clog.InfoContextf(ctx, "Gateway advertises %d tools", len(tools))

	if cfg.Model == "" || cfg.Task == "" {
		return nil
	}

	system, err := systemPrompt(tools)
	if err != nil {
		return err
	}
	runner, err := agentrunner.New(ctx, cfg.Model, agentrunner.WithSystemTemplate(system))
	if err != nil {
		return err
	}
	answer, err := runner.Run(ctx, cfg.Task, tools, func(ctx context.Context, call gateway.ToolCall) (*gateway.ToolResult, error) {
		return s.Invoke(ctx, gw.URL, tok, call)
	})
	if err != nil {
		return err
	}
	clog.InfoContextf(ctx, "Agent answer: %s", answer)
	return nil
}

const systemTemplate = `You are an assistant with access to remote tools served by a gateway.

The gateway currently advertises:
{{tools}}

Prefer calling a tool over guessing. Answer concisely once you have what you need.`

// systemPrompt binds the advertised tools into the system instructions.
func systemPrompt(tools []gateway.ToolDescriptor) (*prompt.Template, error) {
	summaries := make([]map[string]string, 0, len(tools))
	for _, t := range tools {
		summaries = append(summaries, map[string]string{
			"name":        t.Name,
			"description": t.Description,
		})
	}
	tmpl, err := prompt.New(systemTemplate)
	if err != nil {
		return nil, err
	}
	return tmpl.BindJSON("tools", summaries)
}
