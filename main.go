package main

import "github.com/meysamhadeli/codgrade/cmd"

func main() {
	cmd.Execute()
}
