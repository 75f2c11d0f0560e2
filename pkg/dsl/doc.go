/*
Package dsl builds sluice task graphs in Go instead of a Taskfile.

It is useful for embedding sluice in another program, for unit tests, and
for actions that are easier to express as code than as plugin steps.

	b := dsl.New()
	b.Task("clean").Func(func(ctx context.Context) error {
		return os.RemoveAll("www")
	})
	b.Task("copy").Deps("clean").Pipeline(
		pipeline.Src(".", "www_dev/img/*"),
		pipeline.Dest("www/img"),
	)
	b.Task("build").Deps("copy").Describe("Production build")

	loader, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}
	engine, err := sluice.New(".", sluice.WithLoader(loader))

Build validates the graph: unknown prerequisites and cycles are reported
there, before anything runs.
*/
package dsl
