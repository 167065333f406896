package main

import "github.com/KaramelBytes/policyqa-cli/cmd"

func main() {
	cmd.Execute()
}
