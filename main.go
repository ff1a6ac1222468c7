package main

import "github.com/crystaldolphin/canvasagent/cmd"

func main() {
	cmd.Execute()
}
