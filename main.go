package main

import "github.com/fakeyudi/oprec/cmd"

func main() {
	cmd.Execute()
}
