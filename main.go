package main

import "github.com/hlab-io/openconsole/cmd"

func main() {
	cmd.Execute()
}
