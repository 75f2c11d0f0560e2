package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

func gocmd(a *goyek.A, args ...string) {
	a.Logf("go %v", args)
	cmd := exec.CommandContext(a.Context(), "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		gocmd(a, "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run the tests with the race detector",
	Action: func(a *goyek.A) {
		gocmd(a, "test", "-race", "-count=1", "./...")
	},
})

var binary = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the sluice binary into bin/",
	Action: func(a *goyek.A) {
		gocmd(a, "build", "-o", "bin/sluice", "./cmd/sluice")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, test and build",
	Deps:  goyek.Deps{vet, test, binary},
})

func main() {
	goyek.Main(os.Args[1:])
}
