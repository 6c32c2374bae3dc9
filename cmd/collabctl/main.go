package main

import "github.com/pilab-dev/teams-collab/cmd/collabctl/cmd"

func main() {
	cmd.Execute()
}
