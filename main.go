package main

import "github.com/nextlevelbuilder/tsphub/cmd"

func main() {
	cmd.Execute()
}
