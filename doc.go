/*
Package sluice is a front-end build task runner: named tasks with explicit
prerequisites, executed concurrently, whose bodies are file pipelines, external
tools, a live-reload dev server or file watchers.

# Concept

A project declares its tasks in a Taskfile (sluice.yaml or sluice.toml) or
as Markdown documents under tasks/. The engine compiles the declarations into
a validated, acyclic graph and runs invocations against it. Every task starts
only after all of its prerequisites completed, runs at most once per
invocation, and the first failure stops anything new from starting.

Task bodies complete in one of three ways: by returning, by calling back, or by
draining a stream of files. Long-lived bodies (dev server, watch) complete once
they are ready and keep the invocation alive until it is cancelled.

# Usage

	engine, err := sluice.New("./my-app")
	if err != nil {
		log.Fatal(err)
	}
	run, err := engine.Run(ctx, "build")
	if err != nil {
		log.Fatalf("run %s failed: %v", run.ID, err)
	}

Graphs can also be built in Go with the dsl package and injected with
WithLoader.
*/
package sluice
