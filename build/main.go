package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

func run(a *goyek.A, name string, args ...string) {
	a.Helper()
	a.Log(name, args)
	cmd := exec.CommandContext(a.Context(), name, args...)
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
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run the unit tests",
	Deps:  goyek.Deps{vet},
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-short", "./...")
	},
})

var binary = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the buildbpy binary into bin/",
	Deps:  goyek.Deps{test},
	Action: func(a *goyek.A) {
		run(a, "go", "build", "-o", "bin/", "./cmd/buildbpy")
	},
})

func main() {
	goyek.SetDefault(binary)
	goyek.Main(os.Args[1:])
}
